// Package events records ledger events and fans them out to observers.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/givers/charity-ledger/internal/model"
	"github.com/givers/charity-ledger/internal/repository"
	"github.com/google/uuid"
)

// Publisher forwards committed events to external observers.
type Publisher interface {
	Publish(ctx context.Context, ev *model.Event) error
}

// Journal appends events to the repository, then publishes them.
// The repository write is the durable one; publish failures are only logged.
type Journal struct {
	repo       repository.EventRepository
	publishers []Publisher
}

// NewJournal creates a Journal writing to repo.
func NewJournal(repo repository.EventRepository, publishers ...Publisher) *Journal {
	return &Journal{repo: repo, publishers: publishers}
}

// Record assigns an ID (and a timestamp, if missing) and stores ev.
func (j *Journal) Record(ctx context.Context, ev *model.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := j.repo.Append(ctx, ev); err != nil {
		return fmt.Errorf("journal append %s: %w", ev.Kind, err)
	}
	for _, p := range j.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			slog.Warn("event publish failed", "kind", ev.Kind, "seq", ev.Seq, "error", err)
		}
	}
	return nil
}

// Load returns every journaled event in replay order, reading in pages.
func (j *Journal) Load(ctx context.Context) ([]*model.Event, error) {
	const page = 500
	var all []*model.Event
	var after int64
	for {
		batch, err := j.repo.List(ctx, after, page)
		if err != nil {
			return nil, fmt.Errorf("journal load after seq %d: %w", after, err)
		}
		all = append(all, batch...)
		if len(batch) < page {
			return all, nil
		}
		after = batch[len(batch)-1].Seq
	}
}

// Recent returns up to limit campaign events, newest first.
// campaignID 0 covers every campaign.
func (j *Journal) Recent(ctx context.Context, campaignID uint64, limit int) ([]*model.Event, error) {
	evs, err := j.repo.Recent(ctx, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent (campaign %d): %w", campaignID, err)
	}
	return evs, nil
}

// Ping reports whether the underlying repository is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.repo.Ping(ctx)
}
