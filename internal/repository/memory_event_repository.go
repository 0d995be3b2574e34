package repository

import (
	"context"
	"sync"

	"github.com/givers/charity-ledger/internal/model"
)

type memoryEventRepository struct {
	mu     sync.RWMutex
	events []*model.Event
}

// NewMemoryEventRepository returns a process-local EventRepository.
func NewMemoryEventRepository() EventRepository {
	return &memoryEventRepository{}
}

func (r *memoryEventRepository) Append(_ context.Context, ev *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Seq = int64(len(r.events)) + 1
	cp := *ev
	r.events = append(r.events, &cp)
	return nil
}

func (r *memoryEventRepository) List(_ context.Context, afterSeq int64, limit int) ([]*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Event
	for _, ev := range r.events {
		if ev.Seq <= afterSeq {
			continue
		}
		cp := *ev
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryEventRepository) Recent(_ context.Context, campaignID uint64, limit int) ([]*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Event
	for i := len(r.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		ev := r.events[i]
		if !matchesCampaign(ev, campaignID) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

// matchesCampaign reports whether ev belongs to campaignID (any campaign when 0).
func matchesCampaign(ev *model.Event, campaignID uint64) bool {
	if ev.CampaignID == 0 {
		return false
	}
	return campaignID == 0 || ev.CampaignID == campaignID
}

func (r *memoryEventRepository) Ping(context.Context) error { return nil }
