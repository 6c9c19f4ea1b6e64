package taglog

import (
	"context"
	"time"

	"github.com/rzbill/taglog/internal/kv"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

// sweepBatch bounds how many bodies are fetched at once.
const sweepBatch = 256

// Archiver receives expired records before they are removed. A failing
// Archive keeps the record for a later sweep.
type Archiver interface {
	Archive(ctx context.Context, r Record) error
}

// ArchiverFunc adapts a function to Archiver.
type ArchiverFunc func(ctx context.Context, r Record) error

func (f ArchiverFunc) Archive(ctx context.Context, r Record) error { return f(ctx, r) }

// SweepResult summarises one sweep.
type SweepResult struct {
	// Expired is how many ids were due.
	Expired int
	// Removed counts ids unlinked from every flow and deleted.
	Removed int
	// Failures lists records kept because the archiver failed or the body
	// did not decode.
	Failures []*ArchiveError
}

// Sweep removes every record whose expiration is at or before now. With a
// non-nil archiver each record is archived first. Archive failures and
// corrupt bodies are reported in the result and do not stop the sweep; store
// failures do.
//
// Sweeps of the same namespace must not run concurrently.
func (l *Logger) Sweep(ctx context.Context, now time.Time, archiver Archiver) (SweepResult, error) {
	var res SweepResult
	due, err := l.flows.ids(ctx, FlowExpire, kv.MinScore, score(now.UTC()), 0, false)
	if err != nil {
		return res, err
	}
	res.Expired = len(due)

	for len(due) > 0 {
		n := min(sweepBatch, len(due))
		batch := due[:n]
		due = due[n:]

		recs, corrupt, err := l.records.fetch(ctx, batch)
		if err != nil {
			return res, err
		}
		byID := make(map[uint64]Record, len(recs))
		for _, r := range recs {
			byID[r.ID] = r
		}

		for _, id := range batch {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if derr, bad := corrupt[id]; bad {
				// Tags are unknown, so the flows cannot be unlinked; keep it all.
				res.Failures = append(res.Failures, &ArchiveError{ID: id, Err: derr})
				l.logger.Warn("undecodable record kept", logpkg.Uint64("id", id), logpkg.Err(derr))
				continue
			}
			r, ok := byID[id]
			if !ok {
				// Body already gone: only the id is left to unlink.
				if err := l.unlink(ctx, id, nil); err != nil {
					return res, err
				}
				res.Removed++
				continue
			}
			if archiver != nil {
				if err := archiver.Archive(ctx, r); err != nil {
					ae := &ArchiveError{ID: id, Err: err}
					res.Failures = append(res.Failures, ae)
					l.logger.Warn("archive failed, record kept", logpkg.Uint64("id", id), logpkg.Err(err))
					continue
				}
			}
			if err := l.unlink(ctx, id, r.Tags); err != nil {
				return res, err
			}
			res.Removed++
		}
	}

	l.metrics.SweepDone(l.namespace, res.Removed, len(res.Failures))
	if res.Expired > 0 {
		l.logger.Info("sweep finished",
			logpkg.Int("expired", res.Expired),
			logpkg.Int("removed", res.Removed),
			logpkg.Int("failed", len(res.Failures)))
	}
	return res, nil
}

// unlink removes id from its tag flows and __all__, deletes the body, and
// only then drops it from __expire__, so an interrupted sweep still finds the
// id next time.
func (l *Logger) unlink(ctx context.Context, id uint64, tags Tags) error {
	for _, t := range tags {
		if err := l.flows.remove(ctx, t, id); err != nil {
			return err
		}
	}
	if err := l.flows.remove(ctx, FlowAll, id); err != nil {
		return err
	}
	if err := l.records.delete(ctx, id); err != nil {
		return err
	}
	return l.flows.remove(ctx, FlowExpire, id)
}
