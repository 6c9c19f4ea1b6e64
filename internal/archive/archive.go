// Package archive writes swept records to zstd-compressed JSON-lines files.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/rzbill/taglog/internal/taglog"
)

// Ext is the file extension of archive files.
const Ext = ".jsonl.zst"

var _ taglog.Archiver = (*FileArchiver)(nil)

// FileArchiver appends records to one archive file, opened on the first
// Archive call. Each record is flushed before Archive returns so it is on
// disk before the sweep deletes it from the store.
type FileArchiver struct {
	dir       string
	namespace string
	now       func() time.Time

	mu    sync.Mutex
	f     *os.File
	enc   *zstd.Encoder
	path  string
	count int
}

// NewFileArchiver archives records of namespace into dir, creating it if needed.
func NewFileArchiver(dir, namespace string) (*FileArchiver, error) {
	if dir == "" {
		return nil, errors.New("archive: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return &FileArchiver{dir: dir, namespace: namespace, now: time.Now}, nil
}

func (a *FileArchiver) open() error {
	ns := a.namespace
	if ns == "" {
		ns = "default"
	}
	name := fmt.Sprintf("%s-%s%s", ns, a.now().UTC().Format("20060102T150405.000000000"), Ext)
	path := filepath.Join(a.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	a.f, a.enc, a.path = f, enc, path
	return nil
}

// Archive writes r as one JSON line.
func (a *FileArchiver) Archive(ctx context.Context, r taglog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enc == nil {
		if err := a.open(); err != nil {
			return fmt.Errorf("archive: open: %w", err)
		}
	}
	if _, err := a.enc.Write(line); err != nil {
		return fmt.Errorf("archive: write: %w", err)
	}
	if err := a.enc.Flush(); err != nil {
		return fmt.Errorf("archive: flush: %w", err)
	}
	a.count++
	return nil
}

// Path returns the current archive file, or "" when nothing was archived.
func (a *FileArchiver) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// Count returns the number of records archived into the current file.
func (a *FileArchiver) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Close finishes the zstd stream and syncs the file. The next Archive call
// starts a new file.
func (a *FileArchiver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enc == nil {
		return nil
	}
	err := a.enc.Close()
	if serr := a.f.Sync(); err == nil {
		err = serr
	}
	if cerr := a.f.Close(); err == nil {
		err = cerr
	}
	a.f, a.enc, a.count = nil, nil, 0
	return err
}

// ReadFile decodes every record of an archive file.
func ReadFile(path string) ([]taglog.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []taglog.Record
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var r taglog.Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return out, fmt.Errorf("archive: decode line %d: %w", len(out)+1, err)
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
