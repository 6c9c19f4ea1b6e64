package taglog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rzbill/taglog/internal/kv"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

// recordStore keeps JSON bodies at <ns>:msg:<id>.
type recordStore struct {
	store  kv.Store
	keys   keyspace
	logger logpkg.Logger
}

func (s recordStore) put(ctx context.Context, r Record) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record %d: %w", r.ID, err)
	}
	if err := s.store.Set(ctx, s.keys.msg(r.ID), body); err != nil {
		return nil, fmt.Errorf("put record %d: %w", r.ID, err)
	}
	return body, nil
}

func (s recordStore) get(ctx context.Context, id uint64) (Record, bool, error) {
	body, ok, err := s.store.Get(ctx, s.keys.msg(id))
	if err != nil {
		return Record{}, false, fmt.Errorf("get record %d: %w", id, err)
	}
	if !ok {
		return Record{}, false, nil
	}
	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		return Record{}, false, fmt.Errorf("decode record %d: %w", id, err)
	}
	return r, true, nil
}

// getMany returns the records that still exist, in the order of ids. Missing
// and undecodable bodies are skipped.
func (s recordStore) getMany(ctx context.Context, ids []uint64) ([]Record, error) {
	recs, corrupt, err := s.fetch(ctx, ids)
	for id, derr := range corrupt {
		s.logger.Warn("skipping undecodable record", logpkg.Uint64("id", id), logpkg.Err(derr))
	}
	return recs, err
}

// fetch is getMany that also reports which bodies exist but fail to decode.
func (s recordStore) fetch(ctx context.Context, ids []uint64) ([]Record, map[uint64]error, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keys.msg(id)
	}
	bodies, err := s.store.MGet(ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("get records: %w", err)
	}
	out := make([]Record, 0, len(ids))
	var corrupt map[uint64]error
	for i, body := range bodies {
		if body == nil {
			continue
		}
		var r Record
		if err := json.Unmarshal(body, &r); err != nil {
			if corrupt == nil {
				corrupt = make(map[uint64]error)
			}
			corrupt[ids[i]] = fmt.Errorf("%w %d: %v", ErrCorruptRecord, ids[i], err)
			continue
		}
		out = append(out, r)
	}
	return out, corrupt, nil
}

func (s recordStore) delete(ctx context.Context, ids ...uint64) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keys.msg(id)
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}
