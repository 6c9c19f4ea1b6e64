package pebblekv

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/taglog/internal/kv"
)

func (s *Store) card(key string) (uint64, error) {
	v, ok, err := s.get(keyCard(key))
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint64(v), nil
}

func (s *Store) memberScore(key string, member uint64) (int64, bool, error) {
	v, ok, err := s.get(keyMember(key, member))
	if err != nil || !ok {
		return 0, false, err
	}
	return decodeScore(decodeUint64(v)), true, nil
}

func (s *Store) ZAdd(ctx context.Context, key string, score int64, member uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists, err := s.memberScore(key, member)
	if err != nil {
		return false, wrap("zadd", err)
	}
	if exists && old == score {
		return false, nil
	}

	b, err := s.db.NewBatch()
	if err != nil {
		return false, wrap("zadd", err)
	}
	defer b.Close()

	if exists {
		if err := b.Delete(keyScore(key, old, member), nil); err != nil {
			return false, wrap("zadd", err)
		}
	} else {
		n, err := s.card(key)
		if err != nil {
			return false, wrap("zadd", err)
		}
		if err := b.Set(keyCard(key), appendBE8(nil, n+1), nil); err != nil {
			return false, wrap("zadd", err)
		}
	}
	if err := b.Set(keyScore(key, score, member), nil, nil); err != nil {
		return false, wrap("zadd", err)
	}
	if err := b.Set(keyMember(key, member), appendBE8(nil, encodeScore(score)), nil); err != nil {
		return false, wrap("zadd", err)
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return false, wrap("zadd", err)
	}
	return !exists, nil
}

func (s *Store) ZRem(ctx context.Context, key string, members ...uint64) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.db.NewBatch()
	if err != nil {
		return 0, wrap("zrem", err)
	}
	defer b.Close()

	seen := make(map[uint64]struct{}, len(members))
	removed := 0
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		score, ok, err := s.memberScore(key, m)
		if err != nil {
			return 0, wrap("zrem", err)
		}
		if !ok {
			continue
		}
		if err := b.Delete(keyScore(key, score, m), nil); err != nil {
			return 0, wrap("zrem", err)
		}
		if err := b.Delete(keyMember(key, m), nil); err != nil {
			return 0, wrap("zrem", err)
		}
		removed++
	}
	if removed == 0 {
		return 0, nil
	}

	n, err := s.card(key)
	if err != nil {
		return 0, wrap("zrem", err)
	}
	if n <= uint64(removed) {
		err = b.Delete(keyCard(key), nil)
	} else {
		err = b.Set(keyCard(key), appendBE8(nil, n-uint64(removed)), nil)
	}
	if err != nil {
		return 0, wrap("zrem", err)
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return 0, wrap("zrem", err)
	}
	return removed, nil
}

func (s *Store) ZScore(ctx context.Context, key string, member uint64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	score, ok, err := s.memberScore(key, member)
	return score, ok, wrap("zscore", err)
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.card(key)
	return int64(n), wrap("zcard", err)
}

// ZRangeByScore seeks straight to the bounds, so cost is one seek plus the
// entries returned.
func (s *Store) ZRangeByScore(ctx context.Context, key string, r kv.ScoreRange) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Min > r.Max {
		return nil, nil
	}
	lower, upper := scoreBounds(key, r.Min, r.Max)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, wrap("zrange", err)
	}
	defer iter.Close()

	var out []uint64
	full := func() bool { return r.Limit > 0 && len(out) >= r.Limit }
	if r.Reverse {
		for ok := iter.Last(); ok && !full(); ok = iter.Prev() {
			_, m := decodeScoreKey(iter.Key())
			out = append(out, m)
		}
	} else {
		for ok := iter.First(); ok && !full(); ok = iter.Next() {
			_, m := decodeScoreKey(iter.Key())
			out = append(out, m)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, wrap("zrange", err)
	}
	return out, nil
}
