package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/givers/charity-ledger/internal/model"
)

// ---------------------------------------------------------------------------
// mockActivitySource — ActivitySource のモック
// ---------------------------------------------------------------------------

type mockActivitySource struct {
	recentFunc func(ctx context.Context, campaignID uint64, limit int) ([]*model.Event, error)
}

func (m *mockActivitySource) Recent(ctx context.Context, campaignID uint64, limit int) ([]*model.Event, error) {
	if m.recentFunc != nil {
		return m.recentFunc(ctx, campaignID, limit)
	}
	return nil, nil
}

// journalSource serves a recordingJournal newest first, like the repositories do.
func journalSource(j *recordingJournal) *mockActivitySource {
	return &mockActivitySource{recentFunc: func(_ context.Context, campaignID uint64, limit int) ([]*model.Event, error) {
		var out []*model.Event
		for i := len(j.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			ev := j.events[i]
			if ev.CampaignID == 0 || (campaignID != 0 && ev.CampaignID != campaignID) {
				continue
			}
			out = append(out, ev)
		}
		return out, nil
	}}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestActivityService_ListGlobal_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t)
	f.approve(t, donorA, 500)
	f.donate(t, donorA, c.ID, 500, t0) // 50%: milestone
	if _, err := f.svc.ToggleCampaignStatus(ctx, creator, c.ID, t0); err != nil {
		t.Fatal(err)
	}

	svc := NewActivityService(journalSource(f.journal), f.svc)
	items, err := svc.ListGlobal(ctx, 10)
	if err != nil {
		t.Fatalf("ListGlobal: %v", err)
	}

	wantTypes := []string{
		model.ActivityCampaignPaused,
		model.ActivityMilestone,
		model.ActivityDonation,
		model.ActivityCampaignCreated,
	}
	if len(items) != len(wantTypes) {
		t.Fatalf("expected %d items, got %d", len(wantTypes), len(items))
	}
	for i, want := range wantTypes {
		if items[i].Type != want {
			t.Errorf("item %d: expected %s, got %s", i, want, items[i].Type)
		}
		if items[i].CampaignTitle != "Clean water" {
			t.Errorf("item %d: expected title, got %q", i, items[i].CampaignTitle)
		}
	}

	donation := items[2]
	if donation.Actor == nil || *donation.Actor != donorA {
		t.Errorf("expected donor actor, got %v", donation.Actor)
	}
	if donation.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("expected amount 500, got %s", donation.Amount)
	}
	if ms := items[1]; ms.Rate == nil || *ms.Rate != 50 {
		t.Errorf("expected milestone rate 50, got %v", ms.Rate)
	}
}

func TestActivityService_ListGlobal_PassesLimit(t *testing.T) {
	var gotLimit int
	src := &mockActivitySource{recentFunc: func(_ context.Context, campaignID uint64, limit int) ([]*model.Event, error) {
		if campaignID != 0 {
			t.Errorf("expected global query, got campaign %d", campaignID)
		}
		gotLimit = limit
		return nil, nil
	}}
	svc := NewActivityService(src, NewCampaignService(&mockTokenLedger{}, nil, platformOwner, custody))

	items, err := svc.ListGlobal(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListGlobal: %v", err)
	}
	if gotLimit != 7 {
		t.Errorf("expected limit 7, got %d", gotLimit)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", items)
	}
}

func TestActivityService_ListGlobal_SourceError(t *testing.T) {
	src := &mockActivitySource{recentFunc: func(context.Context, uint64, int) ([]*model.Event, error) {
		return nil, errors.New("db down")
	}}
	svc := NewActivityService(src, NewCampaignService(&mockTokenLedger{}, nil, platformOwner, custody))

	if _, err := svc.ListGlobal(context.Background(), 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestActivityService_ListByCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t)
	second := f.create(t)
	f.approve(t, donorA, 20)
	f.donate(t, donorA, first.ID, 10, t0)
	f.donate(t, donorA, second.ID, 10, t0)
	if _, err := f.svc.ExtendCampaign(ctx, creator, second.ID, 5, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.EmergencyWithdraw(ctx, platformOwner, first.ID, t0); err != nil {
		t.Fatal(err)
	}

	svc := NewActivityService(journalSource(f.journal), f.svc)
	items, err := svc.ListByCampaign(ctx, second.ID, 20)
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	ext := items[0]
	if ext.Type != model.ActivityCampaignExtended || ext.EndTime == nil {
		t.Fatalf("expected extension first, got %+v", ext)
	}
	if want := t0.Add(15 * 24 * time.Hour); !ext.EndTime.Equal(want) {
		t.Errorf("expected end %v, got %v", want, *ext.EndTime)
	}
	for _, it := range items {
		if it.CampaignID != second.ID {
			t.Errorf("unexpected campaign %d in feed", it.CampaignID)
		}
	}

	firstFeed, _ := svc.ListByCampaign(ctx, first.ID, 1)
	if len(firstFeed) != 1 || firstFeed[0].Type != model.ActivityEmergencyWithdraw {
		t.Errorf("expected emergency withdraw entry, got %+v", firstFeed)
	}
	if a := firstFeed[0].Actor; a == nil || *a != platformOwner {
		t.Errorf("expected owner as recipient, got %v", a)
	}
}

func TestActivityService_ListByCampaign_NotFound(t *testing.T) {
	called := false
	src := &mockActivitySource{recentFunc: func(context.Context, uint64, int) ([]*model.Event, error) {
		called = true
		return nil, nil
	}}
	svc := NewActivityService(src, NewCampaignService(&mockTokenLedger{}, nil, platformOwner, custody))

	_, err := svc.ListByCampaign(context.Background(), 42, 20)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if called {
		t.Error("source should not be queried for an unknown campaign")
	}
}

func TestActivityService_SkipsUndecodableEvents(t *testing.T) {
	svc := NewActivityService(&mockActivitySource{recentFunc: func(context.Context, uint64, int) ([]*model.Event, error) {
		return []*model.Event{
			{Seq: 2, Kind: model.EventDonationReceived, CampaignID: 1, Payload: []byte(`{"amount":"x"`)},
			{Seq: 1, Kind: "future_kind", CampaignID: 1, Payload: []byte(`{}`)},
		}, nil
	}}, NewCampaignService(&mockTokenLedger{}, nil, platformOwner, custody))

	items, err := svc.ListGlobal(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListGlobal: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}
