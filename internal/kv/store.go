// Package kv defines the ordered key-value boundary the log engine is built
// on: atomic counters, plain values, sorted sets and publish/subscribe.
package kv

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrUnavailable marks failures of the underlying store. Callers match it
// with errors.Is; the engine never retries.
var ErrUnavailable = errors.New("kv: store unavailable")

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// Unbounded score limits for ScoreRange.
const (
	MinScore int64 = math.MinInt64
	MaxScore int64 = math.MaxInt64
)

// ScoreRange selects sorted-set members with Min <= score <= Max. Reverse
// returns highest scores first, breaking ties by highest member. Limit <= 0
// means no limit.
type ScoreRange struct {
	Min     int64
	Max     int64
	Limit   int
	Reverse bool
}

// All returns a range covering every score.
func All() ScoreRange { return ScoreRange{Min: MinScore, Max: MaxScore} }

// Subscription receives payloads published on one channel.
type Subscription interface {
	// Messages is closed when the subscription is closed.
	Messages() <-chan []byte
	// Dropped counts payloads lost to a full buffer.
	Dropped() uint64
	Close() error
}

// Store is the set of primitives the engine needs. Every single operation is
// atomic; there are no multi-key transactions.
type Store interface {
	// Incr atomically increments the counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value []byte) error
	// Get returns ok=false for a missing key.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// MGet returns one slot per key, nil for missing keys.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	// Delete removes plain values and sorted sets alike. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists every plain value and sorted set whose name starts with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// ZAdd inserts member or updates its score. It reports whether member was new.
	ZAdd(ctx context.Context, key string, score int64, member uint64) (bool, error)
	// ZRem removes members and returns how many were present.
	ZRem(ctx context.Context, key string, members ...uint64) (int, error)
	ZScore(ctx context.Context, key string, member uint64) (int64, bool, error)
	ZRangeByScore(ctx context.Context, key string, r ScoreRange) ([]uint64, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Publish returns the number of subscribers that accepted the payload.
	Publish(ctx context.Context, channel string, payload []byte) (int, error)
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Close() error
}
