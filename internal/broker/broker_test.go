package broker

import (
	"sync"
	"testing"
	"time"
)

func TestPublishFanOut(t *testing.T) {
	b := New(4)
	defer b.Close()

	foo1, err := b.Subscribe("foo")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	foo2, _ := b.Subscribe("foo")
	bar, _ := b.Subscribe("bar")

	if n := b.Publish("foo", []byte("hello")); n != 2 {
		t.Fatalf("want 2 deliveries, got %d", n)
	}
	for _, s := range []*Subscription{foo1, foo2} {
		select {
		case got := <-s.Messages():
			if string(got) != "hello" {
				t.Fatalf("got %q", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscription %s got nothing", s.ID())
		}
	}
	select {
	case got := <-bar.Messages():
		t.Fatalf("bar should not receive foo traffic, got %q", got)
	default:
	}
}

func TestFullBufferDrops(t *testing.T) {
	b := New(1)
	defer b.Close()
	s, _ := b.Subscribe("t")

	b.Publish("t", []byte("1"))
	if n := b.Publish("t", []byte("2")); n != 0 {
		t.Fatalf("second publish should be dropped, delivered=%d", n)
	}
	if s.Dropped() != 1 {
		t.Fatalf("want 1 dropped, got %d", s.Dropped())
	}
	if got := <-s.Messages(); string(got) != "1" {
		t.Fatalf("got %q", got)
	}
}

func TestCloseUnblocksReceiver(t *testing.T) {
	b := New(1)
	defer b.Close()
	s, _ := b.Subscribe("t")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range s.Messages() {
		}
	}()

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("receiver not released by Close")
	}
	if b.SubscriberCount("t") != 0 {
		t.Fatalf("closed subscription still registered")
	}
	if n := b.Publish("t", []byte("x")); n != 0 {
		t.Fatalf("publish after close delivered %d", n)
	}
}

func TestBrokerClose(t *testing.T) {
	b := New(1)
	s, _ := b.Subscribe("t")
	b.Close()
	if _, ok := <-s.Messages(); ok {
		t.Fatalf("expected channel closed")
	}
	if _, err := b.Subscribe("t"); err != ErrClosed {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}
