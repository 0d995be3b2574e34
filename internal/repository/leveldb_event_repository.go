package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/givers/charity-ledger/internal/model"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Keys are "ev/" + big-endian seq so iteration order equals Seq order.
var levelEventPrefix = []byte("ev/")

// LevelDBEventRepository is an embedded, single-process EventRepository.
type LevelDBEventRepository struct {
	db *leveldb.DB

	mu      sync.Mutex
	lastSeq int64
}

// NewLevelDBEventRepository opens (or creates) the journal at path.
func NewLevelDBEventRepository(path string) (*LevelDBEventRepository, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	r := &LevelDBEventRepository{db: db}

	iter := db.NewIterator(util.BytesPrefix(levelEventPrefix), nil)
	if iter.Last() {
		r.lastSeq = decodeSeq(iter.Key())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func levelEventKey(seq int64) []byte {
	k := make([]byte, len(levelEventPrefix)+8)
	copy(k, levelEventPrefix)
	binary.BigEndian.PutUint64(k[len(levelEventPrefix):], uint64(seq))
	return k
}

func decodeSeq(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(levelEventPrefix):]))
}

func (r *LevelDBEventRepository) Append(_ context.Context, ev *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.lastSeq + 1
	rec := *ev
	rec.Seq = seq
	b, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	if err := r.db.Put(levelEventKey(seq), b, &opt.WriteOptions{Sync: true}); err != nil {
		return err
	}
	r.lastSeq = seq
	ev.Seq = seq
	return nil
}

func (r *LevelDBEventRepository) List(_ context.Context, afterSeq int64, limit int) ([]*model.Event, error) {
	rng := &util.Range{Start: levelEventKey(afterSeq + 1), Limit: util.BytesPrefix(levelEventPrefix).Limit}
	iter := r.db.NewIterator(rng, nil)
	defer iter.Release()

	var out []*model.Event
	for iter.Next() {
		ev := &model.Event{}
		if err := json.Unmarshal(iter.Value(), ev); err != nil {
			return nil, fmt.Errorf("decode journal key %x: %w", iter.Key(), err)
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, iter.Error()
}

// Recent walks the journal backwards. There is no secondary index, so a
// campaign filter costs a scan of the newer events.
func (r *LevelDBEventRepository) Recent(_ context.Context, campaignID uint64, limit int) ([]*model.Event, error) {
	iter := r.db.NewIterator(util.BytesPrefix(levelEventPrefix), nil)
	defer iter.Release()

	var out []*model.Event
	for ok := iter.Last(); ok && (limit <= 0 || len(out) < limit); ok = iter.Prev() {
		ev := &model.Event{}
		if err := json.Unmarshal(iter.Value(), ev); err != nil {
			return nil, fmt.Errorf("decode journal key %x: %w", iter.Key(), err)
		}
		if matchesCampaign(ev, campaignID) {
			out = append(out, ev)
		}
	}
	return out, iter.Error()
}

func (r *LevelDBEventRepository) Ping(context.Context) error {
	_, err := r.db.GetProperty("leveldb.stats")
	return err
}

func (r *LevelDBEventRepository) Close() error {
	return r.db.Close()
}
