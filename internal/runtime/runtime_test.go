package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rzbill/taglog/internal/archive"
	cfgpkg "github.com/rzbill/taglog/internal/config"
	"github.com/rzbill/taglog/internal/namespace"
	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
	"github.com/rzbill/taglog/internal/taglog"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

func openRuntime(t *testing.T, cfg cfgpkg.Config) *Runtime {
	t.Helper()
	rt, err := Open(Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfg,
		Logger:  logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput())),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openRuntime(t, cfgpkg.Default())
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err == nil {
		t.Fatalf("closed runtime reported healthy")
	}
}

func TestLoggerPerNamespace(t *testing.T) {
	rt := openRuntime(t, cfgpkg.Default())
	ctx := context.Background()

	a, err := rt.Logger(ctx, "a")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	again, _ := rt.Logger(ctx, "a")
	if a != again {
		t.Fatalf("logger not cached")
	}
	if _, err := rt.Logger(ctx, "bad name"); !errors.Is(err, namespace.ErrInvalidName) {
		t.Fatalf("want ErrInvalidName, got %v", err)
	}
	if _, err := rt.Logger(ctx, "b"); err != nil {
		t.Fatalf("logger b: %v", err)
	}
	metas, err := rt.Namespaces()
	if err != nil || len(metas) != 2 {
		t.Fatalf("namespaces = %+v %v", metas, err)
	}
	if rt.ResolveNamespace("") != "default" || rt.ResolveNamespace("x") != "x" {
		t.Fatalf("namespace resolution broken")
	}
}

func TestSweepAllArchives(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.ArchiveDir = t.TempDir()
	rt := openRuntime(t, cfg)
	ctx := context.Background()

	now := time.Now()
	for _, ns := range []string{"a", "b"} {
		l, _ := rt.Logger(ctx, ns)
		if _, err := l.LogText(ctx, ns, taglog.WithExpireIn(time.Second)); err != nil {
			t.Fatalf("log: %v", err)
		}
		if _, err := l.LogText(ctx, "keep"); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	results, err := rt.SweepAll(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("sweep all: %v", err)
	}
	for _, ns := range []string{"a", "b"} {
		if results[ns].Removed != 1 {
			t.Fatalf("%s: %+v", ns, results[ns])
		}
		l, _ := rt.Logger(ctx, ns)
		if n, _ := l.Count(ctx, ""); n != 1 {
			t.Fatalf("%s: %d records left", ns, n)
		}
	}
	files, err := filepath.Glob(filepath.Join(cfg.ArchiveDir, "*"+archive.Ext))
	if err != nil || len(files) != 2 {
		t.Fatalf("archive files = %v %v", files, err)
	}
	recs, err := archive.ReadFile(files[0])
	if err != nil || len(recs) != 1 {
		t.Fatalf("archived = %+v %v", recs, err)
	}
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	rt := openRuntime(t, cfgpkg.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rt.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
