package pebblestore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch/write.
	FsyncModeAlways
	// FsyncModeInterval enables group-commit by allowing Pebble to coalesce WAL
	// syncs for operations within the configured interval.
	FsyncModeInterval
	// FsyncModeNever avoids forcing WAL syncs from the application.
	FsyncModeNever
)

// ParseFsyncMode maps the CLI spelling (always|interval|never) to a mode.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch s {
	case "always", "":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	default:
		return FsyncModeUnspecified, errors.New("invalid fsync mode; use always|interval|never")
	}
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = pebble.ErrNotFound

// ErrClosed is returned by every operation once the DB has been closed.
var ErrClosed = errors.New("pebble: db closed")

// Options configures the Pebble store wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
	// Metrics observes read/commit latencies and sizes. Optional.
	Metrics MetricsHook
}

// MetricsHook is a minimal hook surface for storage observations.
type MetricsHook interface {
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

// DB wraps a Pebble database instance with fsync policy and basic helpers.
type DB struct {
	inner     atomic.Pointer[pebble.DB]
	writeSync bool
	metrics   MetricsHook
}

// Open creates or opens a Pebble database with the provided options.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	switch opts.Fsync {
	case FsyncModeAlways, FsyncModeNever:
		// Always syncs per commit (see CommitBatch); Never leaves it to Pebble.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	db := &DB{
		writeSync: opts.Fsync == FsyncModeAlways || opts.Fsync == FsyncModeInterval,
		metrics:   metrics,
	}
	db.inner.Store(inner)
	return db, nil
}

// Close closes the Pebble database. Subsequent calls return nil.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	inner := db.inner.Swap(nil)
	if inner == nil {
		return nil
	}
	return inner.Close()
}

// Closed reports whether Close has been called.
func (db *DB) Closed() bool { return db == nil || db.inner.Load() == nil }

func (db *DB) handle() (*pebble.DB, error) {
	if db == nil {
		return nil, ErrClosed
	}
	inner := db.inner.Load()
	if inner == nil {
		return nil, ErrClosed
	}
	return inner, nil
}

// NewBatch creates a new batch for atomic multi-key updates.
func (db *DB) NewBatch() (*pebble.Batch, error) {
	inner, err := db.handle()
	if err != nil {
		return nil, err
	}
	return inner.NewBatch(), nil
}

// CommitBatch commits the provided batch with the configured fsync policy.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if db.Closed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	start := time.Now()
	size := b.Len()
	ops := int(b.Count())

	syncMode := pebble.NoSync
	if db.writeSync {
		syncMode = pebble.Sync
	}
	err := b.Commit(syncMode)
	db.metrics.ObserveBatchCommit(time.Since(start), ops, size)
	return err
}

// Set writes a single key in its own batch.
func (db *DB) Set(ctx context.Context, key, value []byte) error {
	b, err := db.NewBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return db.CommitBatch(ctx, b)
}

// Delete removes a single key in its own batch.
func (db *DB) Delete(ctx context.Context, key []byte) error {
	b, err := db.NewBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.CommitBatch(ctx, b)
}

// Get copies the value for the given key. Missing keys return ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	inner, err := db.handle()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	val, closer, err := inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// GetMany looks up keys against one snapshot so the batch observes a single
// point in time. Missing keys yield nil at their position.
func (db *DB) GetMany(keys [][]byte) ([][]byte, error) {
	inner, err := db.handle()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	snap := inner.NewSnapshot()
	defer snap.Close()

	out := make([][]byte, len(keys))
	total := 0
	for i, k := range keys {
		val, closer, err := snap.Get(k)
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = append([]byte(nil), val...)
		total += len(val)
		_ = closer.Close()
	}
	db.metrics.ObserveRead(time.Since(start), total)
	return out, nil
}

// NewIter creates a raw Pebble iterator with the provided options.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	inner, err := db.handle()
	if err != nil {
		return nil, err
	}
	return inner.NewIter(opts)
}

// CompactRange requests compaction of the key range [start, end).
func (db *DB) CompactRange(start, end []byte) error {
	inner, err := db.handle()
	if err != nil {
		return err
	}
	return inner.Compact(start, end, true)
}
