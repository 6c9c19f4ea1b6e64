package taglog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rzbill/taglog/internal/filter"
	"github.com/rzbill/taglog/internal/kv"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

// publish is fire-and-forget: failures are logged, never returned.
func (l *Logger) publish(ctx context.Context, id uint64, body []byte) {
	n, err := l.store.Publish(ctx, l.keys.channel(), body)
	if err != nil {
		l.logger.Warn("publish failed", logpkg.Uint64("id", id), logpkg.Err(err))
		return
	}
	l.metrics.Published(l.namespace, n)
}

type subscribeOptions struct {
	tag    string
	filter string
}

// SubscribeOption narrows a subscription.
type SubscribeOption func(*subscribeOptions)

// OnlyTag delivers only records carrying tag.
func OnlyTag(tag string) SubscribeOption {
	return func(o *subscribeOptions) { o.tag = tag }
}

// MatchFilter delivers only records matching a CEL expression.
func MatchFilter(expr string) SubscribeOption {
	return func(o *subscribeOptions) { o.filter = expr }
}

// Subscription is a live sequence of records written to the namespace after
// Subscribe returned. Delivery is best effort: a subscriber that falls
// behind loses records (see Dropped), and a record may arrive before or
// after it becomes visible to Get.
type Subscription struct {
	sub    kv.Subscription
	tag    string
	filter *filter.Filter
	logger logpkg.Logger
}

// Subscribe starts listening on the namespace channel.
func (l *Logger) Subscribe(ctx context.Context, opts ...SubscribeOption) (*Subscription, error) {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	f, err := filter.Compile(o.filter)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	sub, err := l.store.Subscribe(ctx, l.keys.channel())
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &Subscription{sub: sub, tag: o.tag, filter: f, logger: l.logger}, nil
}

// Next blocks until the next matching record arrives, ctx is done, or the
// subscription is closed (ErrSubscriptionClosed).
func (s *Subscription) Next(ctx context.Context) (Record, error) {
	for {
		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case body, ok := <-s.sub.Messages():
			if !ok {
				return Record{}, ErrSubscriptionClosed
			}
			var r Record
			if err := json.Unmarshal(body, &r); err != nil {
				s.logger.Warn("dropping undecodable broadcast", logpkg.Err(err))
				continue
			}
			if s.tag != "" && !r.Tags.Has(s.tag) {
				continue
			}
			if !s.filter.Match(r.filterInput()) {
				continue
			}
			return r, nil
		}
	}
}

// Listen calls fn for every record until ctx is done, fn fails, or the
// subscription is closed. A close ends Listen with a nil error.
func (s *Subscription) Listen(ctx context.Context, fn func(Record) error) error {
	for {
		r, err := s.Next(ctx)
		if errors.Is(err, ErrSubscriptionClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
}

// Dropped counts records lost because the subscriber fell behind.
func (s *Subscription) Dropped() uint64 { return s.sub.Dropped() }

// Close unsubscribes and releases any blocked Next. It cannot be undone.
func (s *Subscription) Close() error { return s.sub.Close() }
