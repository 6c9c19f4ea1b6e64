package client

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/taglog/internal/config"
	"github.com/rzbill/taglog/internal/runtime"
	httpserver "github.com/rzbill/taglog/internal/server/http"
	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

func startServer(t *testing.T) string {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfgpkg.Default(),
		Logger:  logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput())),
	})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	srv := httptest.NewServer(httpserver.New(rt, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = rt.Close()
	})
	return srv.URL
}

func run(t *testing.T, base string, args ...string) string {
	t.Helper()
	out, err := runErr(context.Background(), base, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func runErr(ctx context.Context, base string, args ...string) (string, error) {
	root := NewRoot(func() string { return base })
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func TestLogGetLatest(t *testing.T) {
	base := startServer(t)
	run(t, base, "log", "first", "-t", "a")
	run(t, base, "log", "hello {user}", "-t", "a", "--attr", "user=bob")
	run(t, base, "log", `{"n":3}`, "--structured", "-t", "b", "--tagging", "order=42")

	out := run(t, base, "get", "-t", "a", "-T", "2006")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("get: %q", out)
	}
	if !strings.HasSuffix(lines[0], " hello bob") || !strings.HasSuffix(lines[1], " first") {
		t.Fatalf("order or render: %q", lines)
	}

	out = run(t, base, "get", "--attr", "order=42", "--json")
	if !strings.Contains(out, `"n":3`) {
		t.Fatalf("attr get: %q", out)
	}

	out = run(t, base, "latest", "-l", "5")
	if !strings.Contains(out, `{"n":3}`) {
		t.Fatalf("latest: %q", out)
	}

	out = run(t, base, "count", "-t", "a")
	if strings.TrimSpace(out) != "2" {
		t.Fatalf("count: %q", out)
	}
}

func TestGetTimeRange(t *testing.T) {
	base := startServer(t)
	run(t, base, "log", "old", "--ts", "2024-01-01 00:00:00")
	run(t, base, "log", "new", "--ts", "2024-06-01 00:00:00")

	out := run(t, base, "get", "--min-ts", "2024-03-01")
	if !strings.Contains(out, "new") || strings.Contains(out, "old") {
		t.Fatalf("min-ts: %q", out)
	}
	out = run(t, base, "get", "--max-ts", "2024-03-01")
	if !strings.Contains(out, "old") || strings.Contains(out, "new") {
		t.Fatalf("max-ts: %q", out)
	}
}

func TestSweepAndCleanup(t *testing.T) {
	base := startServer(t)
	run(t, base, "log", "gone", "-p", "tmp", "--expire-in", "1ms")
	run(t, base, "log", "kept", "-p", "tmp")
	time.Sleep(5 * time.Millisecond)

	out := run(t, base, "sweep", "-p", "tmp")
	if !strings.Contains(out, "tmp: expired=1 removed=1") {
		t.Fatalf("sweep: %q", out)
	}
	if _, err := runErr(context.Background(), base, "cleanup", "-p", "tmp"); err == nil {
		t.Fatal("cleanup without --confirm should fail")
	}
	run(t, base, "cleanup", "-p", "tmp", "--confirm")
	if out := run(t, base, "count", "-p", "tmp"); strings.TrimSpace(out) != "0" {
		t.Fatalf("count after cleanup: %q", out)
	}
	if out := run(t, base, "namespaces"); !strings.Contains(out, "tmp") {
		t.Fatalf("namespaces: %q", out)
	}
}

func TestServerErrorsSurface(t *testing.T) {
	base := startServer(t)
	_, err := runErr(context.Background(), base, "get", "-t", "__expire__")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected 400, got %v", err)
	}
	_, err = runErr(context.Background(), base, "log", "{bad", "--structured")
	if err == nil {
		t.Fatal("expected invalid JSON error")
	}
}

func TestListenStopsAtLimit(t *testing.T) {
	base := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := runErr(ctx, base, "listen", "-t", "live", "-l", "1", "-T", "")
		done <- result{out, err}
	}()

	// Keep writing until the listener, which subscribes asynchronously,
	// has seen one record.
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case r := <-done:
			if r.err != nil {
				t.Fatalf("listen: %v", r.err)
			}
			if !strings.Contains(r.out, "ping") {
				t.Fatalf("listen output: %q", r.out)
			}
			return
		case <-tick.C:
			if _, err := runErr(ctx, base, "log", "ping", "-t", "live"); err != nil {
				t.Fatalf("log: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("listen did not finish")
		}
	}
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"a=1", "b=true", "c=x", "d="})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["a"] != 1.0 || got["b"] != true || got["c"] != "x" || got["d"] != "" {
		t.Fatalf("pairs: %#v", got)
	}
	if _, err := parsePairs([]string{"novalue"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-05-01T12:00:00Z", "2024-05-01 12:00:00", "1714564800000"} {
		got, err := parseTime(s)
		if err != nil || !got.Equal(want) {
			t.Fatalf("%s: %v %v", s, got, err)
		}
	}
	if _, err := parseTime("soon"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommandsDefaultBaseURL(t *testing.T) {
	var names []string
	for _, c := range Commands(nil) {
		names = append(names, c.Name())
	}
	want := "log get latest listen count sweep cleanup namespaces"
	if strings.Join(names, " ") != want {
		t.Fatalf("commands: %v", names)
	}
	if root := NewRoot(nil); len(root.Commands()) != len(names) {
		t.Fatalf("root has %d commands", len(root.Commands()))
	}
}
