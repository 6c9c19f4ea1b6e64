package taglog

import (
	"context"
	"fmt"

	"github.com/rzbill/taglog/internal/kv"
)

// idGenerator hands out strictly increasing ids from the namespace counter.
// Atomicity is the store's.
type idGenerator struct {
	store kv.Store
	key   string
}

func (g idGenerator) next(ctx context.Context) (uint64, error) {
	n, err := g.store.Incr(ctx, g.key)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return uint64(n), nil
}
