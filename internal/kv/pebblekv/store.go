// Package pebblekv implements kv.Store on a Pebble database, with sorted sets
// encoded as score-ordered keys and publish/subscribe served by an in-memory
// broker.
package pebblekv

import (
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/taglog/internal/broker"
	"github.com/rzbill/taglog/internal/kv"
	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

var _ kv.Store = (*Store)(nil)

// Store serialises read-modify-write operations under one mutex and commits
// each operation as a single Pebble batch. It does not own the DB.
type Store struct {
	db     *pebblestore.DB
	broker *broker.Broker
	logger logpkg.Logger
	mu     sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithBroker shares an existing broker instead of creating one.
func WithBroker(b *broker.Broker) Option { return func(s *Store) { s.broker = b } }

// WithLogger sets the store logger.
func WithLogger(l logpkg.Logger) Option { return func(s *Store) { s.logger = l } }

// New wraps db.
func New(db *pebblestore.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, o := range opts {
		o(s)
	}
	if s.broker == nil {
		s.broker = broker.New(broker.DefaultBuffer)
	}
	if s.logger == nil {
		s.logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	s.logger = s.logger.With(logpkg.Component("pebblekv"))
	return s
}

// Close closes the broker, releasing every subscription. The DB stays open.
func (s *Store) Close() error {
	s.broker.Close()
	return nil
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return kv.Unavailable(op, err)
}

// get returns nil, false for a missing key.
func (s *Store) get(k []byte) ([]byte, bool, error) {
	v, err := s.db.Get(k)
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyString(key)
	cur, ok, err := s.get(k)
	if err != nil {
		return 0, wrap("incr", err)
	}
	var n int64
	if ok {
		n, err = strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return 0, kv.Unavailable("incr", errors.New("value is not an integer"))
		}
	}
	n++
	if err := s.db.Set(ctx, k, strconv.AppendInt(nil, n, 10)); err != nil {
		return 0, wrap("incr", err)
	}
	return n, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return wrap("set", s.db.Set(ctx, keyString(key), value))
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok, err := s.get(keyString(key))
	return v, ok, wrap("get", err)
}

func (s *Store) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = keyString(k)
	}
	vals, err := s.db.GetMany(raw)
	return vals, wrap("mget", err)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.db.NewBatch()
	if err != nil {
		return wrap("delete", err)
	}
	defer b.Close()
	for _, key := range keys {
		if err := b.Delete(keyString(key), nil); err != nil {
			return wrap("delete", err)
		}
		if err := b.Delete(keyCard(key), nil); err != nil {
			return wrap("delete", err)
		}
		for _, tag := range []byte{tagScore, tagMember} {
			p := zsetPrefix(tag, key)
			if err := b.DeleteRange(p, prefixEnd(p), nil); err != nil {
				return wrap("delete", err)
			}
		}
	}
	return wrap("delete", s.db.CommitBatch(ctx, b))
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	for _, lower := range [][]byte{keyString(prefix), keyCard(prefix)} {
		iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: prefixEnd(lower)})
		if err != nil {
			return nil, wrap("keys", err)
		}
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(iter.Key()[1:]))
		}
		if err := iter.Close(); err != nil {
			return nil, wrap("keys", err)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (s *Store) Publish(ctx context.Context, channel string, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.broker.Publish(channel, payload), nil
}

func (s *Store) Subscribe(ctx context.Context, channel string) (kv.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, err := s.broker.Subscribe(channel)
	if err != nil {
		return nil, wrap("subscribe", err)
	}
	s.logger.Debug("subscribed", logpkg.Str("channel", channel), logpkg.Str("subscription", sub.ID()))
	return sub, nil
}

func decodeUint64(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}
