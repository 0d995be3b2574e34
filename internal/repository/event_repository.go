package repository

import (
	"context"

	"github.com/givers/charity-ledger/internal/model"
)

// EventRepository は台帳ジャーナルの永続化インターフェース。
// Records are append-only; List returns them in Seq order.
type EventRepository interface {
	// Append stores ev and sets ev.Seq.
	Append(ctx context.Context, ev *model.Event) error
	// List returns up to limit events with Seq > afterSeq. limit <= 0 means no limit.
	List(ctx context.Context, afterSeq int64, limit int) ([]*model.Event, error)
	// Recent returns up to limit campaign events, newest first. campaignID 0
	// means every campaign; token events are never included.
	Recent(ctx context.Context, campaignID uint64, limit int) ([]*model.Event, error)
	Ping(ctx context.Context) error
}
