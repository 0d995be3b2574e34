package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/givers/charity-ledger/internal/model"
)

// ActivitySource is the read side of the journal the feed is built from.
type ActivitySource interface {
	Recent(ctx context.Context, campaignID uint64, limit int) ([]*model.Event, error)
}

// CampaignLookup resolves campaign titles for feed entries.
type CampaignLookup interface {
	Campaign(ctx context.Context, campaignID uint64) (*model.Campaign, error)
}

// ActivityService はアクティビティフィードのビジネスロジックのインターフェース
type ActivityService interface {
	ListGlobal(ctx context.Context, limit int) ([]*model.ActivityItem, error)
	ListByCampaign(ctx context.Context, campaignID uint64, limit int) ([]*model.ActivityItem, error)
}

type activityService struct {
	source    ActivitySource
	campaigns CampaignLookup
}

// NewActivityService creates an ActivityService.
func NewActivityService(source ActivitySource, campaigns CampaignLookup) ActivityService {
	return &activityService{source: source, campaigns: campaigns}
}

func (s *activityService) ListGlobal(ctx context.Context, limit int) ([]*model.ActivityItem, error) {
	evs, err := s.source.Recent(ctx, 0, limit)
	if err != nil {
		return nil, err
	}
	return s.toItems(ctx, evs), nil
}

// ListByCampaign returns ErrNotFound for an unknown campaign rather than an
// empty feed.
func (s *activityService) ListByCampaign(ctx context.Context, campaignID uint64, limit int) ([]*model.ActivityItem, error) {
	if _, err := s.campaigns.Campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	evs, err := s.source.Recent(ctx, campaignID, limit)
	if err != nil {
		return nil, err
	}
	return s.toItems(ctx, evs), nil
}

func (s *activityService) toItems(ctx context.Context, evs []*model.Event) []*model.ActivityItem {
	titles := make(map[uint64]string)
	items := make([]*model.ActivityItem, 0, len(evs))
	for _, ev := range evs {
		item, err := activityFromEvent(ev)
		if err != nil {
			slog.Warn("activity: skip undecodable event", "seq", ev.Seq, "kind", ev.Kind, "error", err)
			continue
		}
		if item == nil {
			continue
		}
		title, ok := titles[item.CampaignID]
		if !ok {
			c, err := s.campaigns.Campaign(ctx, item.CampaignID)
			switch {
			case err == nil:
				title = c.Title
			case !errors.Is(err, ErrNotFound):
				slog.Warn("activity: campaign lookup failed", "campaign_id", item.CampaignID, "error", err)
			}
			titles[item.CampaignID] = title
		}
		item.CampaignTitle = title
		items = append(items, item)
	}
	return items
}

// activityFromEvent returns nil for kinds the feed doesn't show.
func activityFromEvent(ev *model.Event) (*model.ActivityItem, error) {
	item := &model.ActivityItem{Seq: ev.Seq, CampaignID: ev.CampaignID, CreatedAt: ev.OccurredAt}
	switch ev.Kind {
	case model.EventCampaignCreated:
		var p model.CampaignCreated
		if err := ev.Decode(&p); err != nil {
			return nil, err
		}
		item.Type = model.ActivityCampaignCreated
		item.Actor = addrPtr(p.Creator)
		item.Amount = p.TargetAmount
	case model.EventDonationReceived:
		var p model.DonationReceived
		if err := ev.Decode(&p); err != nil {
			return nil, err
		}
		item.Type = model.ActivityDonation
		item.Actor = addrPtr(p.Donor)
		item.Amount = p.Amount
		item.Message = p.Message
	case model.EventFundsReleased:
		var p model.FundsReleased
		if err := ev.Decode(&p); err != nil {
			return nil, err
		}
		item.Type = model.ActivityFundsReleased
		if p.Emergency {
			item.Type = model.ActivityEmergencyWithdraw
		}
		item.Actor = addrPtr(p.Beneficiary)
		item.Amount = p.Amount
	case model.EventCampaignStatusChanged:
		var p model.CampaignStatusChanged
		if err := ev.Decode(&p); err != nil {
			return nil, err
		}
		item.Type = model.ActivityCampaignPaused
		if p.IsActive {
			item.Type = model.ActivityCampaignResumed
		}
	case model.EventCampaignExtended:
		var p model.CampaignExtended
		if err := ev.Decode(&p); err != nil {
			return nil, err
		}
		item.Type = model.ActivityCampaignExtended
		end := p.NewEndTime
		item.EndTime = &end
	case model.EventCampaignMilestone:
		var p model.CampaignMilestone
		if err := ev.Decode(&p); err != nil {
			return nil, err
		}
		item.Type = model.ActivityMilestone
		rate := p.Rate
		item.Rate = &rate
		item.Amount = p.Raised
	default:
		return nil, nil
	}
	if item.CampaignID == 0 {
		return nil, fmt.Errorf("%s event without campaign id", ev.Kind)
	}
	return item, nil
}

func addrPtr(a common.Address) *common.Address { return &a }
