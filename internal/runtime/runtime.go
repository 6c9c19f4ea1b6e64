package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/taglog/internal/archive"
	"github.com/rzbill/taglog/internal/broker"
	cfgpkg "github.com/rzbill/taglog/internal/config"
	"github.com/rzbill/taglog/internal/kv"
	"github.com/rzbill/taglog/internal/kv/pebblekv"
	"github.com/rzbill/taglog/internal/metrics"
	"github.com/rzbill/taglog/internal/namespace"
	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
	"github.com/rzbill/taglog/internal/taglog"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
}

// Runtime wires storage, config, metrics and per-namespace engines for a
// single-node instance.
type Runtime struct {
	db        *pebblestore.DB
	store     *pebblekv.Store
	metrics   *metrics.Metrics
	config    cfgpkg.Config
	logger    logpkg.Logger
	validator *namespace.Validator

	mu      sync.Mutex
	loggers map[string]*taglog.Logger

	// sweeps of one namespace must not overlap
	sweepMu sync.Mutex
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	validator, err := namespace.NewValidator(opts.Config)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       m,
	})
	if err != nil {
		return nil, err
	}
	store := pebblekv.New(db,
		pebblekv.WithBroker(broker.New(opts.Config.SubscriberBuffer)),
		pebblekv.WithLogger(logger),
	)
	rt := &Runtime{
		db:        db,
		store:     store,
		metrics:   m,
		config:    opts.Config,
		logger:    logger.With(logpkg.Component("runtime")),
		validator: validator,
		loggers:   map[string]*taglog.Logger{},
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	_ = r.store.Close()
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil || r.db.Closed() {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// ResolveNamespace maps "" to the configured default namespace.
func (r *Runtime) ResolveNamespace(name string) string {
	if name == "" {
		return r.config.DefaultNamespaceName
	}
	return name
}

// Logger returns the engine for a namespace, validating the name and
// recording its metadata on first use.
func (r *Runtime) Logger(ctx context.Context, name string) (*taglog.Logger, error) {
	if err := r.validator.Validate(name); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[name]; ok {
		return l, nil
	}
	if _, err := namespace.EnsureNamespace(ctx, r.db, name); err != nil {
		return nil, kv.Unavailable("ensure namespace", err)
	}
	l := taglog.NewWithLogger(r.store, name, r.logger.WithComponent("taglog"), taglog.WithMetrics(r.metrics))
	r.loggers[name] = l
	return l, nil
}

// Namespaces lists every namespace that has been written to.
func (r *Runtime) Namespaces() ([]namespace.Meta, error) {
	return namespace.List(r.db)
}

// Sweep runs one expiration sweep over a namespace. When ArchiveDir is
// configured, swept records are archived there first.
func (r *Runtime) Sweep(ctx context.Context, name string, now time.Time) (taglog.SweepResult, error) {
	l, err := r.Logger(ctx, name)
	if err != nil {
		return taglog.SweepResult{}, err
	}
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	if r.config.ArchiveDir == "" {
		return l.Sweep(ctx, now, nil)
	}
	a, err := archive.NewFileArchiver(r.config.ArchiveDir, name)
	if err != nil {
		return taglog.SweepResult{}, err
	}
	res, err := l.Sweep(ctx, now, a)
	if cerr := a.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close archive: %w", cerr)
	}
	if p := a.Path(); p != "" {
		r.logger.Info("archived expired records", logpkg.Namespace(name), logpkg.Str("file", p))
	}
	return res, err
}

// SweepAll sweeps every known namespace, one at a time.
func (r *Runtime) SweepAll(ctx context.Context, now time.Time) (map[string]taglog.SweepResult, error) {
	metas, err := r.Namespaces()
	if err != nil {
		return nil, err
	}
	out := make(map[string]taglog.SweepResult, len(metas))
	for _, m := range metas {
		res, err := r.Sweep(ctx, m.Name, now)
		if err != nil {
			return out, fmt.Errorf("sweep %q: %w", m.Name, err)
		}
		out[m.Name] = res
	}
	return out, nil
}

// RunSweeper sweeps every namespace each interval until ctx is done.
func (r *Runtime) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if _, err := r.SweepAll(ctx, now); err != nil && ctx.Err() == nil {
				r.logger.Error("scheduled sweep failed", logpkg.Err(err))
			}
		}
	}
}

// Store exposes the key-value store.
func (r *Runtime) Store() kv.Store { return r.store }

// Metrics returns the metrics registry wrapper.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
