package repository

import (
	"context"
	"fmt"

	"github.com/givers/charity-ledger/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgEventRepository struct {
	pool *pgxpool.Pool
}

// NewPgEventRepository returns a PostgreSQL-backed EventRepository.
// The ledger_events table is created by cmd/migrate.
func NewPgEventRepository(pool *pgxpool.Pool) EventRepository {
	return &pgEventRepository{pool: pool}
}

func (r *pgEventRepository) Append(ctx context.Context, ev *model.Event) error {
	var campaignID *int64
	if ev.CampaignID != 0 {
		id := int64(ev.CampaignID)
		campaignID = &id
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO ledger_events (id, kind, campaign_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING seq`,
		ev.ID, string(ev.Kind), campaignID, []byte(ev.Payload), ev.OccurredAt,
	).Scan(&ev.Seq)
}

func (r *pgEventRepository) List(ctx context.Context, afterSeq int64, limit int) ([]*model.Event, error) {
	query := `SELECT seq, id::text, kind, COALESCE(campaign_id, 0), payload, occurred_at
		 FROM ledger_events
		 WHERE seq > $1
		 ORDER BY seq`
	args := []any{afterSeq}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	return r.query(ctx, query, args...)
}

// Recent uses idx_ledger_events_campaign (partial on campaign_id IS NOT NULL).
func (r *pgEventRepository) Recent(ctx context.Context, campaignID uint64, limit int) ([]*model.Event, error) {
	query := `SELECT seq, id::text, kind, COALESCE(campaign_id, 0), payload, occurred_at
		 FROM ledger_events
		 WHERE campaign_id IS NOT NULL`
	var args []any
	if campaignID != 0 {
		args = append(args, int64(campaignID))
		query += fmt.Sprintf(` AND campaign_id = $%d`, len(args))
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return r.query(ctx, query, args...)
}

func (r *pgEventRepository) query(ctx context.Context, query string, args ...any) ([]*model.Event, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Event, error) {
		ev := &model.Event{}
		var kind string
		var campaignID int64
		var payload []byte
		if err := row.Scan(&ev.Seq, &ev.ID, &kind, &campaignID, &payload, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Kind = model.EventKind(kind)
		ev.CampaignID = uint64(campaignID)
		ev.Payload = payload
		return ev, nil
	})
}

func (r *pgEventRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
