// Package namespace validates namespace names (store key prefixes) and keeps
// a small metadata record for each namespace in use.
package namespace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/cockroachdb/pebble"

	cfgpkg "github.com/rzbill/taglog/internal/config"
	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
)

// ErrInvalidName is returned for names rejected by the configured rules.
var ErrInvalidName = errors.New("namespace: invalid name")

// Meta holds namespace metadata.
type Meta struct {
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

var nsMetaPrefix = []byte("nsmeta/")

func nsMetaKey(ns string) []byte {
	k := make([]byte, 0, len(nsMetaPrefix)+len(ns))
	k = append(k, nsMetaPrefix...)
	return append(k, ns...)
}

// Validator applies the name regex and optional allowlist from config.
type Validator struct {
	re      *regexp.Regexp
	allowed []string
}

// NewValidator compiles the rules in cfg.
func NewValidator(cfg cfgpkg.Config) (*Validator, error) {
	v := &Validator{allowed: slices.Clone(cfg.AllowedNamespaces)}
	if cfg.NamespaceNameRegex != "" {
		re, err := regexp.Compile(cfg.NamespaceNameRegex)
		if err != nil {
			return nil, fmt.Errorf("namespace regex: %w", err)
		}
		v.re = re
	}
	return v, nil
}

// Validate reports whether name may be used as a key prefix. Names may not
// contain ':' since it separates key segments.
func (v *Validator) Validate(name string) error {
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return fmt.Errorf("%w: %q contains ':'", ErrInvalidName, name)
		}
	}
	if v.re != nil && !v.re.MatchString(name) {
		return fmt.Errorf("%w: %q does not match %s", ErrInvalidName, name, v.re)
	}
	if len(v.allowed) > 0 && !slices.Contains(v.allowed, name) {
		return fmt.Errorf("%w: %q is not allowed", ErrInvalidName, name)
	}
	return nil
}

// EnsureNamespace creates a namespace meta record if absent, returning the effective meta.
// Idempotent: returns existing if already present.
func EnsureNamespace(ctx context.Context, db *pebblestore.DB, name string) (Meta, error) {
	key := nsMetaKey(name)
	if b, err := db.Get(key); err == nil && len(b) > 0 {
		var m Meta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// fallthrough to rewrite if corrupted
	} else if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return Meta{}, err
	}
	m := Meta{Name: name, CreatedAtMs: time.Now().UnixMilli()}
	b, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(ctx, key, b); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// List returns every known namespace in name order.
func List(db *pebblestore.DB) ([]Meta, error) {
	upper := append([]byte(nil), nsMetaPrefix...)
	upper[len(upper)-1]++
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: nsMetaPrefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []Meta
	for ok := iter.First(); ok; ok = iter.Next() {
		var m Meta
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}
