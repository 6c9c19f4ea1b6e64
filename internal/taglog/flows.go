package taglog

import (
	"context"
	"fmt"

	"github.com/rzbill/taglog/internal/kv"
)

// flowIndex maps record ids to scores, one sorted set per flow.
type flowIndex struct {
	store kv.Store
	keys  keyspace
}

func (f flowIndex) add(ctx context.Context, flow string, id uint64, sc int64) error {
	if _, err := f.store.ZAdd(ctx, f.keys.flow(flow), sc, id); err != nil {
		return fmt.Errorf("add %d to flow %q: %w", id, flow, err)
	}
	return nil
}

func (f flowIndex) remove(ctx context.Context, flow string, ids ...uint64) error {
	if _, err := f.store.ZRem(ctx, f.keys.flow(flow), ids...); err != nil {
		return fmt.Errorf("remove from flow %q: %w", flow, err)
	}
	return nil
}

// ids returns flow members with lo <= score <= hi. Descending ranges order
// equal scores by id, newest first.
func (f flowIndex) ids(ctx context.Context, flow string, lo, hi int64, limit int, descending bool) ([]uint64, error) {
	ids, err := f.store.ZRangeByScore(ctx, f.keys.flow(flow), kv.ScoreRange{
		Min:     lo,
		Max:     hi,
		Limit:   limit,
		Reverse: descending,
	})
	if err != nil {
		return nil, fmt.Errorf("range flow %q: %w", flow, err)
	}
	return ids, nil
}

func (f flowIndex) count(ctx context.Context, flow string) (int64, error) {
	n, err := f.store.ZCard(ctx, f.keys.flow(flow))
	if err != nil {
		return 0, fmt.Errorf("count flow %q: %w", flow, err)
	}
	return n, nil
}
