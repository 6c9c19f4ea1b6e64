package taglog

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/rzbill/taglog/internal/kv"
	"github.com/rzbill/taglog/internal/logctx"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

// Logger writes and reads records of one namespace. It holds no mutable log
// state of its own and is safe for concurrent use.
type Logger struct {
	namespace string
	store     kv.Store
	keys      keyspace
	ids       idGenerator
	records   recordStore
	flows     flowIndex
	logger    logpkg.Logger
	metrics   Metrics
	now       func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithLogger sets the diagnostic logger.
func WithLogger(l logpkg.Logger) Option {
	return func(lg *Logger) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithMetrics installs a metrics observer.
func WithMetrics(m Metrics) Option {
	return func(lg *Logger) {
		if m != nil {
			lg.metrics = m
		}
	}
}

// WithClock overrides the time source used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(lg *Logger) {
		if now != nil {
			lg.now = now
		}
	}
}

// New returns a Logger storing records under namespace.
func New(store kv.Store, namespace string, opts ...Option) *Logger {
	keys := keyspace{ns: namespace}
	lg := &Logger{
		namespace: namespace,
		store:     store,
		keys:      keys,
		ids:       idGenerator{store: store, key: keys.counter()},
		flows:     flowIndex{store: store, keys: keys},
		logger:    logpkg.NewLogger().With(logpkg.Component("taglog")),
		metrics:   noopMetrics{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(lg)
	}
	lg.logger = lg.logger.With(logpkg.Namespace(namespace))
	lg.records = recordStore{store: store, keys: keys, logger: lg.logger}
	return lg
}

// NewWithLogger is New with an injected diagnostic logger.
func NewWithLogger(store kv.Store, namespace string, logger logpkg.Logger, opts ...Option) *Logger {
	return New(store, namespace, append([]Option{WithLogger(logger)}, opts...)...)
}

// Namespace returns the key prefix.
func (l *Logger) Namespace() string { return l.namespace }

type logOptions struct {
	tags     []string
	attrs    Attrs
	ts       time.Time
	expireAt *time.Time
	expireIn time.Duration
}

// LogOption customises a single Log call.
type LogOption func(*logOptions)

// WithTags adds tags to the record.
func WithTags(tags ...string) LogOption {
	return func(o *logOptions) { o.tags = append(o.tags, tags...) }
}

// WithAttrs adds attributes, overriding context attributes with the same key.
func WithAttrs(attrs Attrs) LogOption {
	return func(o *logOptions) {
		if o.attrs == nil {
			o.attrs = Attrs{}
		}
		maps.Copy(o.attrs, attrs)
	}
}

// WithTaggingAttrs adds both the tag and the attribute form of each pair.
func WithTaggingAttrs(ta TaggingAttributes) LogOption {
	return func(o *logOptions) {
		WithTags(ta.Tags()...)(o)
		WithAttrs(ta.Attrs())(o)
	}
}

// WithTimestamp sets the record timestamp instead of the current time.
func WithTimestamp(ts time.Time) LogOption {
	return func(o *logOptions) { o.ts = ts }
}

// WithExpireAt sets an absolute expiration.
func WithExpireAt(t time.Time) LogOption {
	return func(o *logOptions) { o.expireAt = &t }
}

// WithExpireIn sets the expiration relative to the record timestamp.
func WithExpireIn(d time.Duration) LogOption {
	return func(o *logOptions) { o.expireIn = d }
}

// Log writes a record: body first, then its flows, then a broadcast. The
// record's tags and attributes are the caller's logctx context merged with
// opts, explicit options winning.
func (l *Logger) Log(ctx context.Context, msg Message, opts ...LogOption) (Record, error) {
	var o logOptions
	for _, opt := range opts {
		opt(&o)
	}

	tags := NewTags(append(logctx.Tags(ctx), o.tags...)...)
	for _, t := range tags {
		if !validTag(t) {
			return Record{}, fmt.Errorf("%w: %q", ErrInvalidTag, t)
		}
	}
	attrs := Attrs(logctx.Attrs(ctx))
	maps.Copy(attrs, o.attrs)

	// Id before clock, so default timestamps follow id order.
	id, err := l.ids.next(ctx)
	if err != nil {
		return Record{}, err
	}
	ts := o.ts
	if ts.IsZero() {
		ts = l.now()
	}
	ts = ts.UTC().Truncate(time.Microsecond)

	rec := Record{ID: id, Message: msg, Attrs: attrs, Tags: tags, TS: ts}
	switch {
	case o.expireAt != nil:
		exp := o.expireAt.UTC().Truncate(time.Microsecond)
		rec.ExpireAt = &exp
	case o.expireIn > 0:
		exp := ts.Add(o.expireIn)
		rec.ExpireAt = &exp
	}

	body, err := l.records.put(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	if err := l.flows.add(ctx, FlowAll, id, score(ts)); err != nil {
		return Record{}, err
	}
	for _, t := range tags {
		if err := l.flows.add(ctx, t, id, score(ts)); err != nil {
			return Record{}, err
		}
	}
	if rec.ExpireAt != nil {
		if err := l.flows.add(ctx, FlowExpire, id, score(*rec.ExpireAt)); err != nil {
			return Record{}, err
		}
	}
	l.metrics.RecordWritten(l.namespace)
	l.publish(ctx, id, body)
	return rec, nil
}

// LogText is Log with a text message.
func (l *Logger) LogText(ctx context.Context, text string, opts ...LogOption) (Record, error) {
	return l.Log(ctx, Text(text), opts...)
}

// Count returns the number of records in a tag's flow, or in __all__ when tag
// is empty.
func (l *Logger) Count(ctx context.Context, tag string) (int64, error) {
	if tag == "" {
		tag = FlowAll
	}
	return l.flows.count(ctx, tag)
}

// FullCleanup deletes every record, flow and the id counter of the namespace.
func (l *Logger) FullCleanup(ctx context.Context) error {
	var keys []string
	for _, p := range []string{l.keys.msgPrefix(), l.keys.flowPrefix()} {
		ks, err := l.store.Keys(ctx, p)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		keys = append(keys, ks...)
	}
	keys = append(keys, l.keys.counter())
	if err := l.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	l.logger.Info("namespace cleaned up", logpkg.Int("keys", len(keys)))
	return nil
}
