package taglog

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPubSubIsNamespaced(t *testing.T) {
	store := newTestStore(t)
	foo := NewWithLogger(store, "foo", quietLogger())
	bar := NewWithLogger(store, "bar", quietLogger())
	ctx := context.Background()

	sub, err := foo.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if _, err := bar.LogText(ctx, "bar message"); err != nil {
		t.Fatalf("log: %v", err)
	}
	written, err := foo.LogText(ctx, "foo message", WithTags("t"))
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	nctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := sub.Next(nctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.ID != written.ID || got.Message.String() != "foo message" || !got.Tags.Has("t") {
		t.Fatalf("got %+v", got)
	}
}

func TestSubscribeFilters(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()

	sub, err := l.Subscribe(ctx, OnlyTag("keep"), MatchFilter(`text != "skip"`))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	mustLog(t, l, ctx, "other tag", WithTags("drop"))
	mustLog(t, l, ctx, "skip", WithTags("keep"))
	mustLog(t, l, ctx, "wanted", WithTags("keep"))

	nctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := sub.Next(nctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Message.String() != "wanted" {
		t.Fatalf("got %q", got.Message.String())
	}

	if _, err := l.Subscribe(ctx, MatchFilter("id ==")); err == nil {
		t.Fatalf("expected filter compile error")
	}
}

func TestCloseUnblocksListen(t *testing.T) {
	l := newTestLogger(t, "test")
	sub, err := l.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- sub.Listen(context.Background(), func(Record) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listen not released by Close")
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("next after close: %v", err)
	}
}

func TestListenStopsOnCallbackError(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()
	sub, _ := l.Subscribe(ctx)
	defer sub.Close()

	mustLog(t, l, ctx, "one")
	stop := errors.New("stop")
	lctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var seen []string
	err := sub.Listen(lctx, func(r Record) error {
		seen = append(seen, r.Message.String())
		return stop
	})
	if !errors.Is(err, stop) || len(seen) != 1 || seen[0] != "one" {
		t.Fatalf("listen = %v, seen %v", err, seen)
	}
}
