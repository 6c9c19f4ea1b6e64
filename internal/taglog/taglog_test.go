package taglog

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/taglog/internal/kv"
	"github.com/rzbill/taglog/internal/kv/pebblekv"
	"github.com/rzbill/taglog/internal/logctx"
	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) kv.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := pebblekv.New(db)
	t.Cleanup(func() {
		_ = s.Close()
		_ = db.Close()
	})
	return s
}

func quietLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
}

func newTestLogger(t *testing.T, ns string, opts ...Option) *Logger {
	t.Helper()
	return NewWithLogger(newTestStore(t), ns, quietLogger(), opts...)
}

func mustLog(t *testing.T, l *Logger, ctx context.Context, text string, opts ...LogOption) Record {
	t.Helper()
	r, err := l.LogText(ctx, text, opts...)
	if err != nil {
		t.Fatalf("log %q: %v", text, err)
	}
	return r
}

func messages(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Message.String()
	}
	return out
}

func TestTagScenario(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()

	mustLog(t, l, ctx, "A", WithTags("foo"))
	mustLog(t, l, ctx, "B", WithTags("bar"))
	mustLog(t, l, ctx, "C", WithTags("foo", "bar"))

	cases := []struct {
		tag  string
		want []string
	}{
		{"foo", []string{"C", "A"}},
		{"bar", []string{"C", "B"}},
		{"", []string{"C", "B", "A"}},
		{FlowAll, []string{"C", "B", "A"}},
		{"nope", []string{}},
	}
	for _, tc := range cases {
		recs, err := l.Get(ctx, Query{Tag: tc.tag})
		if err != nil {
			t.Fatalf("get %q: %v", tc.tag, err)
		}
		if got := messages(recs); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("get %q = %v want %v", tc.tag, got, tc.want)
		}
		for _, r := range recs {
			if tc.tag != "" && tc.tag != FlowAll && !r.Tags.Has(tc.tag) {
				t.Fatalf("record %d lacks tag %q", r.ID, tc.tag)
			}
		}
	}
}

func TestDescendingIDOrderUnderTimestampCollisions(t *testing.T) {
	l := newTestLogger(t, "test", WithClock(func() time.Time { return t0 }))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		mustLog(t, l, ctx, "same ts")
	}
	recs, err := l.Get(ctx, Query{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(recs) != 20 {
		t.Fatalf("want 20 records, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i-1].ID <= recs[i].ID {
			t.Fatalf("ids not strictly descending at %d: %d then %d", i, recs[i-1].ID, recs[i].ID)
		}
	}
}

func TestConcurrentWritersAreAllIndexed(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := l.LogText(ctx, "x", WithTags("t")); err != nil {
					t.Errorf("log: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	if n, _ := l.Count(ctx, "t"); n != 40 {
		t.Fatalf("tag flow count = %d, want 40", n)
	}
	if n, _ := l.Count(ctx, ""); n != 40 {
		t.Fatalf("all flow count = %d, want 40", n)
	}
}

func TestGetLatestMatchesFirstOfGet(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()

	if _, ok, err := l.GetLatest(ctx, Query{Tag: "foo"}); err != nil || ok {
		t.Fatalf("empty flow: ok=%v err=%v", ok, err)
	}
	mustLog(t, l, ctx, "one", WithTags("foo"))
	mustLog(t, l, ctx, "two", WithTags("foo"))
	mustLog(t, l, ctx, "three")

	latest, ok, err := l.GetLatest(ctx, Query{Tag: "foo"})
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	recs, _ := l.Get(ctx, Query{Tag: "foo", Limit: 1})
	if len(recs) != 1 || recs[0].ID != latest.ID {
		t.Fatalf("latest %d != first of get %v", latest.ID, recs)
	}
	if latest.Message.String() != "two" {
		t.Fatalf("latest = %q", latest.Message.String())
	}
}

func TestRoundTrip(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()

	msg, err := Structured(map[string]any{"event": "login", "ok": true})
	if err != nil {
		t.Fatalf("structured: %v", err)
	}
	written, err := l.Log(ctx, msg, WithAttrs(Attrs{"user_id": 1}), WithTags("foo", "foo"))
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	got, ok, err := l.GetByID(ctx, written.ID)
	if err != nil || !ok {
		t.Fatalf("get by id: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got.Attrs, Attrs{"user_id": float64(1)}) {
		t.Fatalf("attrs = %#v", got.Attrs)
	}
	if !reflect.DeepEqual(got.Tags, Tags{"foo"}) {
		t.Fatalf("tags = %#v", got.Tags)
	}
	if got.Message.Kind() != KindStructured {
		t.Fatalf("message kind = %v", got.Message.Kind())
	}
	var body map[string]any
	if err := got.Message.Decode(&body); err != nil || body["event"] != "login" {
		t.Fatalf("decode message: %v %v", body, err)
	}
	if !got.TS.Equal(written.TS) || got.ExpireAt != nil {
		t.Fatalf("ts/expire mismatch: %v %v", got.TS, got.ExpireAt)
	}
	if _, ok, err := l.GetByID(ctx, written.ID+100); err != nil || ok {
		t.Fatalf("missing id: ok=%v err=%v", ok, err)
	}
}

func TestTimeRange(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustLog(t, l, ctx, string(rune('a'+i)), WithTimestamp(t0.Add(time.Duration(i)*time.Minute)))
	}

	recs, err := l.Get(ctx, Query{MinTS: t0.Add(time.Minute), MaxTS: t0.Add(3 * time.Minute)})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := messages(recs); !reflect.DeepEqual(got, []string{"d", "c", "b"}) {
		t.Fatalf("range = %v", got)
	}
	recs, _ = l.Get(ctx, Query{MinTS: t0.Add(3 * time.Minute)})
	if got := messages(recs); !reflect.DeepEqual(got, []string{"e", "d"}) {
		t.Fatalf("open max = %v", got)
	}
	recs, _ = l.Get(ctx, Query{MaxTS: t0, Limit: 10})
	if got := messages(recs); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("open min = %v", got)
	}
	local := t0.Add(2 * time.Minute).In(time.FixedZone("X", 3*3600))
	recs, _ = l.Get(ctx, Query{MinTS: local, MaxTS: local})
	if got := messages(recs); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("zoned bounds = %v", got)
	}
}

func TestInvalidQueries(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()
	for name, q := range map[string]Query{
		"two attrs":      {Attr: TA("user", "foo").And("ip", "127.0.0.1")},
		"tag and attr":   {Tag: "x", Attr: TA("user", "foo")},
		"negative limit": {Limit: -1},
		"expire flow":    {Tag: FlowExpire},
		"bad filter":     {Filter: "id =="},
	} {
		if _, err := l.Get(ctx, q); !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("%s: want ErrInvalidQuery, got %v", name, err)
		}
		if name == "negative limit" {
			continue
		}
		if _, _, err := l.GetLatest(ctx, q); !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("%s latest: want ErrInvalidQuery, got %v", name, err)
		}
	}
}

func TestInvalidTags(t *testing.T) {
	l := newTestLogger(t, "test")
	for _, tag := range []string{"", FlowAll, FlowExpire} {
		if _, err := l.LogText(context.Background(), "x", WithTags(tag)); !errors.Is(err, ErrInvalidTag) {
			t.Fatalf("tag %q: want ErrInvalidTag, got %v", tag, err)
		}
	}
	if n, _ := l.Count(context.Background(), ""); n != 0 {
		t.Fatalf("rejected writes were indexed")
	}
}

func TestTaggingAttributes(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()

	r := mustLog(t, l, ctx, "{user} is from {ip}", WithTaggingAttrs(TA("user", "foo").And("ip", "127.0.0.1")))
	mustLog(t, l, ctx, "random message")

	if got := r.String(); got != "foo is from 127.0.0.1" {
		t.Fatalf("rendered = %q", got)
	}
	rec, ok, err := l.GetLatest(ctx, Query{Attr: TA("user", "foo")})
	if err != nil || !ok {
		t.Fatalf("latest by attr: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(rec.Tags, NewTags("user:foo", "ip:127.0.0.1")) {
		t.Fatalf("tags = %v", rec.Tags)
	}
	if !reflect.DeepEqual(rec.Attrs, Attrs{"user": "foo", "ip": "127.0.0.1"}) {
		t.Fatalf("attrs = %v", rec.Attrs)
	}
}

func TestContextFramesAreMerged(t *testing.T) {
	l := newTestLogger(t, "test")

	err := logctx.Scope(context.Background(), TA("user", "foo").And("ip", "127.0.0.1").Frame(), func(ctx context.Context) error {
		return logctx.Scope(ctx, logctx.Frame{Tags: []string{"inner"}, Attrs: map[string]any{"ip": "10.0.0.1"}}, func(ctx context.Context) error {
			_, err := l.LogText(ctx, "nested", WithAttrs(Attrs{"extra": true}))
			return err
		})
	})
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	mustLog(t, l, context.Background(), "outside")

	rec, ok, _ := l.GetLatest(context.Background(), Query{Attr: TA("user", "foo")})
	if !ok {
		t.Fatalf("record written in scope not found by attr")
	}
	if !reflect.DeepEqual(rec.Tags, NewTags("inner", "ip:127.0.0.1", "user:foo")) {
		t.Fatalf("tags = %v", rec.Tags)
	}
	want := Attrs{"user": "foo", "ip": "10.0.0.1", "extra": true}
	if !reflect.DeepEqual(rec.Attrs, want) {
		t.Fatalf("attrs = %v want %v", rec.Attrs, want)
	}
	latest, _, _ := l.GetLatest(context.Background(), Query{})
	if len(latest.Tags) != 0 || len(latest.Attrs) != 0 {
		t.Fatalf("context leaked past scope: %v %v", latest.Tags, latest.Attrs)
	}
}

func TestScopedWorkersDoNotShareFrames(t *testing.T) {
	l := newTestLogger(t, "test")
	parent := logctx.With(context.Background(), logctx.Frame{Tags: []string{"req"}})

	inA := make(chan struct{})
	releaseA := make(chan struct{})
	var wg sync.WaitGroup
	var errA error
	wg.Add(1)
	go func() {
		defer wg.Done()
		errA = logctx.Scope(parent, logctx.Frame{Tags: []string{"task-a"}}, func(ctx context.Context) error {
			close(inA)
			<-releaseA
			_, err := l.LogText(ctx, "from a")
			return err
		})
	}()

	<-inA
	var recB Record
	err := logctx.Scope(parent, logctx.Frame{Tags: []string{"task-b"}}, func(ctx context.Context) error {
		var err error
		recB, err = l.LogText(ctx, "from b")
		return err
	})
	close(releaseA)
	wg.Wait()
	if err != nil || errA != nil {
		t.Fatalf("scope errors: a=%v b=%v", errA, err)
	}

	if want := NewTags("req", "task-b"); !reflect.DeepEqual(recB.Tags, want) {
		t.Fatalf("task b record tags = %v want %v", recB.Tags, want)
	}
	recA, ok, _ := l.GetLatest(context.Background(), Query{Tag: "task-a"})
	if !ok || !reflect.DeepEqual(recA.Tags, NewTags("req", "task-a")) {
		t.Fatalf("task a record = %v %v", ok, recA.Tags)
	}
	rec, _ := l.LogText(parent, "after")
	if !reflect.DeepEqual(rec.Tags, NewTags("req")) {
		t.Fatalf("frames left behind on the request context: %v", rec.Tags)
	}
}

func TestDefaultTimestampTakenAfterID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	// The clock reports the counter, so a record's ts shows which ids were
	// allocated when it was read.
	clock := func() time.Time {
		b, ok, err := store.Get(ctx, "test:counter")
		if err != nil || !ok {
			return t0
		}
		n, _ := strconv.ParseInt(string(b), 10, 64)
		return t0.Add(time.Duration(n) * time.Millisecond)
	}
	l := NewWithLogger(store, "test", quietLogger(), WithClock(clock))

	for i := 0; i < 5; i++ {
		r := mustLog(t, l, ctx, "tick")
		if want := t0.Add(time.Duration(r.ID) * time.Millisecond); !r.TS.Equal(want) {
			t.Fatalf("record %d ts = %v want %v", r.ID, r.TS, want)
		}
	}
	explicit := t0.Add(-time.Hour)
	r := mustLog(t, l, ctx, "old", WithTimestamp(explicit))
	if !r.TS.Equal(explicit) {
		t.Fatalf("explicit ts rewritten: %v", r.TS)
	}
}

func TestManualInjection(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx, stack := logctx.Ensure(context.Background())

	ta := TA("user", "foo").And("ip", "127.0.0.1")
	stack.Add(ta.Frame())
	mustLog(t, l, ctx, "{user} is from {ip}")
	stack.Remove(ta.Frame())
	mustLog(t, l, ctx, "random message")

	rec, ok, _ := l.GetLatest(ctx, Query{Attr: TA("user", "foo")})
	if !ok || rec.String() != "foo is from 127.0.0.1" {
		t.Fatalf("latest = %v %q", ok, rec.String())
	}
	latest, _, _ := l.GetLatest(ctx, Query{})
	if len(latest.Tags) != 0 {
		t.Fatalf("removed attrs still applied: %v", latest.Tags)
	}
}

func TestFilterQuery(t *testing.T) {
	l := newTestLogger(t, "test")
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		mustLog(t, l, ctx, "n", WithAttrs(Attrs{"n": i}))
	}
	recs, err := l.Get(ctx, Query{Filter: `attrs.n >= 4.0`, Limit: 3})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got []float64
	for _, r := range recs {
		got = append(got, r.Attrs["n"].(float64))
	}
	if !reflect.DeepEqual(got, []float64{9, 8, 7}) {
		t.Fatalf("filtered = %v", got)
	}
}

func TestMissingBodiesAreSkipped(t *testing.T) {
	store := newTestStore(t)
	l := NewWithLogger(store, "test", quietLogger())
	ctx := context.Background()

	a := mustLog(t, l, ctx, "a")
	b := mustLog(t, l, ctx, "b")
	if err := store.Delete(ctx, "test:msg:"+strconv.FormatUint(b.ID, 10)); err != nil {
		t.Fatalf("delete body: %v", err)
	}
	recs, err := l.Get(ctx, Query{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != a.ID {
		t.Fatalf("want only %d, got %v", a.ID, recs)
	}
}

func TestFullCleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	l := NewWithLogger(store, "test", quietLogger())
	other := NewWithLogger(store, "other", quietLogger())

	mustLog(t, l, ctx, "x", WithTags("foo"), WithExpireIn(time.Hour))
	mustLog(t, other, ctx, "y")

	if err := l.FullCleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	keys, _ := store.Keys(ctx, "test:")
	if len(keys) != 0 {
		t.Fatalf("keys left: %v", keys)
	}
	if recs, _ := other.Get(ctx, Query{}); len(recs) != 1 {
		t.Fatalf("other namespace touched: %v", recs)
	}
	r := mustLog(t, l, ctx, "again")
	if r.ID != 1 {
		t.Fatalf("counter not reset, id=%d", r.ID)
	}
}

func TestEmptyNamespaceKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	l := NewWithLogger(store, "", quietLogger())
	mustLog(t, l, ctx, "x", WithTags("foo"))

	keys, _ := store.Keys(ctx, "")
	want := []string{"counter", "flow:__all__", "flow:foo", "msg:1"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v want %v", keys, want)
	}
}
