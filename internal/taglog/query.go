package taglog

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/taglog/internal/filter"
	"github.com/rzbill/taglog/internal/kv"
)

// filterPage is how many ids are fetched per round while a filter is
// consuming the result.
const filterPage = 256

// Query selects records from one flow. Zero times are unbounded, a zero
// Limit returns every match.
type Query struct {
	// Tag selects a tag flow; empty or "__all__" means every record.
	Tag string
	// Attr selects the flow of a single tagging attribute, as an alternative
	// to Tag.
	Attr  TaggingAttributes
	MinTS time.Time
	MaxTS time.Time
	Limit int
	// Filter is an optional CEL expression applied to fetched records.
	Filter string
}

// flow resolves the flow to scan.
func (q Query) flow() (string, error) {
	switch {
	case q.Limit < 0:
		return "", fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	case len(q.Attr) > 1:
		return "", fmt.Errorf("%w: only one tagging attribute can be queried, got %d", ErrInvalidQuery, len(q.Attr))
	case len(q.Attr) == 1 && q.Tag != "":
		return "", fmt.Errorf("%w: both tag and tagging attribute given", ErrInvalidQuery)
	case len(q.Attr) == 1:
		return q.Attr[0].Tag(), nil
	case q.Tag == "" || q.Tag == FlowAll:
		return FlowAll, nil
	case q.Tag == FlowExpire:
		return "", fmt.Errorf("%w: %s is not queryable", ErrInvalidQuery, FlowExpire)
	default:
		return q.Tag, nil
	}
}

func (q Query) bounds() (int64, int64) {
	lo, hi := kv.MinScore, kv.MaxScore
	if !q.MinTS.IsZero() {
		lo = score(q.MinTS)
	}
	if !q.MaxTS.IsZero() {
		hi = score(q.MaxTS)
	}
	return lo, hi
}

// Get returns the records matching q, newest first. Records whose body
// disappeared between the index scan and the fetch are dropped silently.
func (l *Logger) Get(ctx context.Context, q Query) ([]Record, error) {
	start := time.Now()
	flow, err := q.flow()
	if err != nil {
		return nil, err
	}
	f, err := filter.Compile(q.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	lo, hi := q.bounds()

	var out []Record
	if f == nil {
		ids, err := l.flows.ids(ctx, flow, lo, hi, q.Limit, true)
		if err != nil {
			return nil, err
		}
		out, err = l.records.getMany(ctx, ids)
		if err != nil {
			return nil, err
		}
	} else {
		out, err = l.getFiltered(ctx, flow, lo, hi, q.Limit, f)
		if err != nil {
			return nil, err
		}
	}
	l.metrics.QueryServed(l.namespace, len(out), time.Since(start))
	return out, nil
}

// getFiltered applies the limit after the filter, fetching bodies page by page.
func (l *Logger) getFiltered(ctx context.Context, flow string, lo, hi int64, limit int, f *filter.Filter) ([]Record, error) {
	ids, err := l.flows.ids(ctx, flow, lo, hi, 0, true)
	if err != nil {
		return nil, err
	}
	var out []Record
	for len(ids) > 0 {
		n := min(filterPage, len(ids))
		page, err := l.records.getMany(ctx, ids[:n])
		if err != nil {
			return nil, err
		}
		ids = ids[n:]
		for _, r := range page {
			if !f.Match(r.filterInput()) {
				continue
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// GetLatest returns the newest record matching q; ok is false when there is none.
func (l *Logger) GetLatest(ctx context.Context, q Query) (Record, bool, error) {
	q.Limit = 1
	recs, err := l.Get(ctx, q)
	if err != nil || len(recs) == 0 {
		return Record{}, false, err
	}
	return recs[0], true, nil
}

// GetByID returns one record by id.
func (l *Logger) GetByID(ctx context.Context, id uint64) (Record, bool, error) {
	return l.records.get(ctx, id)
}
