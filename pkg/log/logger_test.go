package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type captureOutput struct {
	buf     bytes.Buffer
	entries []*Entry
}

func (c *captureOutput) Write(e *Entry, b []byte) error {
	c.entries = append(c.entries, e)
	c.buf.Write(b)
	return nil
}
func (c *captureOutput) Close() error { return nil }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err=%v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelGating(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithLevel(WarnLevel), WithOutput(out))
	l.Info("dropped")
	l.Warn("kept")
	if len(out.entries) != 1 || out.entries[0].Message != "kept" {
		t.Fatalf("unexpected entries: %+v", out.entries)
	}
	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	if len(out.entries) != 2 {
		t.Fatalf("expected debug entry after SetLevel")
	}
}

func TestJSONFormatterFields(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(out))
	l.With(Component("sweeper")).Error("archive failed", Uint64("id", 7), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(out.buf.Bytes()), &m); err != nil {
		t.Fatalf("decode: %v (%s)", err, out.buf.String())
	}
	if m["component"] != "sweeper" || m["msg"] != "archive failed" || m["error"] != "boom" {
		t.Fatalf("unexpected json: %v", m)
	}
	if m["id"].(float64) != 7 {
		t.Fatalf("id field: %v", m["id"])
	}
	if out.entries[0].Error == nil {
		t.Fatalf("expected entry error to be populated")
	}
}

func TestTextFormatterSortedKeys(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithFormatter(&TextFormatter{DisableTimestamp: true}), WithOutput(out))
	l.Info("hello", Str("b", "2"), Str("a", "1"))
	got := out.buf.String()
	if !strings.HasPrefix(got, "INFO  hello a=1 b=2") {
		t.Fatalf("unexpected text output %q", got)
	}
}

func TestRedaction(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithOutput(out), WithRedactedKeys("token"))
	l.Info("auth", Str("token", "secret"))
	if out.entries[0].Fields["token"] != "[REDACTED]" {
		t.Fatalf("token not redacted: %v", out.entries[0].Fields)
	}
}

func TestApplyConfig(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "debug", Format: "json", Outputs: []string{"null"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.GetLevel() != DebugLevel {
		t.Fatalf("level not applied")
	}
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestSamplerAllow(t *testing.T) {
	s := newSampler(2, 3)
	var allowed int
	for i := 0; i < 8; i++ {
		if s.allow(0, "m") {
			allowed++
		}
	}
	// first 2, then every 3rd of the remaining 6
	if allowed != 4 {
		t.Fatalf("allowed=%d want 4", allowed)
	}
}

func TestBridgeGroupsFlattenKeys(t *testing.T) {
	out := &captureOutput{}
	l := NewLogger(WithOutput(out)).(*BaseLogger)
	sl := slog.New(newBridgeHandler(l)).WithGroup("req").With("id", "r1")
	sl.Info("served", slog.Group("http", slog.Int("status", 200)))
	f := out.entries[0].Fields
	if f["req.id"] != "r1" || f["req.http.status"] != int64(200) {
		t.Fatalf("fields: %v", f)
	}
}
