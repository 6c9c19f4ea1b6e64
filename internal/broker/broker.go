// Package broker is an in-memory topic broker with bounded, non-blocking
// per-subscriber delivery.
package broker

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClosed is returned by Subscribe after the broker has been closed.
var ErrClosed = errors.New("broker: closed")

// DefaultBuffer is used when New is given a non-positive buffer size.
const DefaultBuffer = 1024

// Broker fans published payloads out to every subscriber of a topic. Publish
// never blocks on a slow subscriber; a full buffer drops the payload for that
// subscriber and counts it.
type Broker struct {
	topics  *xsync.MapOf[string, *xsync.MapOf[string, *Subscription]]
	bufSize int
	closed  atomic.Bool
}

// New creates a broker whose subscriptions buffer up to bufSize payloads.
func New(bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = DefaultBuffer
	}
	return &Broker{
		topics:  xsync.NewMapOf[string, *xsync.MapOf[string, *Subscription]](),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscription on topic.
func (b *Broker) Subscribe(topic string) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	sub := &Subscription{
		id:     uuid.NewString(),
		topic:  topic,
		ch:     make(chan []byte, b.bufSize),
		broker: b,
	}
	subs, _ := b.topics.LoadOrCompute(topic, func() *xsync.MapOf[string, *Subscription] {
		return xsync.NewMapOf[string, *Subscription]()
	})
	subs.Store(sub.id, sub)
	return sub, nil
}

// Publish delivers payload to every current subscriber of topic and returns
// how many accepted it.
func (b *Broker) Publish(topic string, payload []byte) int {
	subs, ok := b.topics.Load(topic)
	if !ok {
		return 0
	}
	delivered := 0
	subs.Range(func(_ string, sub *Subscription) bool {
		if sub.deliver(payload) {
			delivered++
		}
		return true
	})
	return delivered
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *Broker) SubscriberCount(topic string) int {
	subs, ok := b.topics.Load(topic)
	if !ok {
		return 0
	}
	return subs.Size()
}

// Close closes every subscription and rejects new ones.
func (b *Broker) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.topics.Range(func(_ string, subs *xsync.MapOf[string, *Subscription]) bool {
		subs.Range(func(_ string, sub *Subscription) bool {
			_ = sub.Close()
			return true
		})
		return true
	})
}

func (b *Broker) unsubscribe(sub *Subscription) {
	if subs, ok := b.topics.Load(sub.topic); ok {
		subs.Delete(sub.id)
	}
}

// Subscription is one subscriber's delivery channel.
type Subscription struct {
	id      string
	topic   string
	ch      chan []byte
	broker  *Broker
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func (s *Subscription) ID() string    { return s.id }
func (s *Subscription) Topic() string { return s.topic }

// Messages is closed once the subscription is closed.
func (s *Subscription) Messages() <-chan []byte { return s.ch }

// Dropped counts payloads discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) deliver(payload []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- payload:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close unsubscribes and closes the delivery channel. It is idempotent.
func (s *Subscription) Close() error {
	s.broker.unsubscribe(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}
