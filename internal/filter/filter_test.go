package filter

import (
	"testing"
	"time"
)

func TestEmptyExpressionMatchesAll(t *testing.T) {
	f, err := Compile("  ")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if f != nil {
		t.Fatalf("expected nil filter")
	}
	if !f.Match(Input{}) {
		t.Fatalf("nil filter must match")
	}
}

func TestMatch(t *testing.T) {
	in := Input{
		ID:    7,
		TS:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Text:  "foo is from 127.0.0.1",
		JSON:  map[string]any{"level": "error", "code": float64(500)},
		Attrs: map[string]any{"user": "foo"},
		Tags:  []string{"user:foo", "web"},
	}
	cases := []struct {
		expr string
		want bool
	}{
		{`id == 7`, true},
		{`"web" in tags`, true},
		{`"db" in tags`, false},
		{`attrs.user == "foo"`, true},
		{`text.contains("127.0.0.1")`, true},
		{`json.level == "error" && json.code >= 500.0`, true},
		{`ts_ms < now_ms`, true},
		{`has(attrs.missing)`, false},
	}
	for _, tc := range cases {
		f, err := Compile(tc.expr)
		if err != nil {
			t.Fatalf("compile %q: %v", tc.expr, err)
		}
		if got := f.Match(in); got != tc.want {
			t.Fatalf("%q: got %v want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalErrorDoesNotMatch(t *testing.T) {
	f, err := Compile(`json.level == "error"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if f.Match(Input{Text: "plain"}) {
		t.Fatalf("missing json must not match")
	}
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{`id ==`, `unknown_var == 1`, `id + 1`} {
		if _, err := Compile(expr); err == nil {
			t.Fatalf("expected compile error for %q", expr)
		}
	}
}
