package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rzbill/taglog/internal/taglog"
)

// DefaultTimeFormat is the Go layout used to prefix printed records.
const DefaultTimeFormat = "[2006-01-02 15:04:05]"

// BaseURLFromEnv returns the HTTP base URL from TAGLOG_HTTP or a default.
func BaseURLFromEnv() string {
	if u := os.Getenv("TAGLOG_HTTP"); u != "" {
		return u
	}
	return "http://127.0.0.1:8080"
}

// parseTime accepts RFC3339, "2006-01-02 15:04:05", a bare date, or Unix
// milliseconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q; expected RFC3339, \"YYYY-MM-DD hh:mm:ss\" or ms", s)
}

// parsePairs turns repeated key=value flags into a map. Values that parse as
// JSON scalars (numbers, booleans) keep their type.
func parsePairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		var scalar any
		if err := json.Unmarshal([]byte(v), &scalar); err == nil {
			switch scalar.(type) {
			case float64, bool:
				out[k] = scalar
				continue
			}
		}
		out[k] = v
	}
	return out, nil
}

// printRecord writes one record as a formatted line, or as a JSON line when
// asJSON is set.
func printRecord(w io.Writer, r taglog.Record, layout string, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(r)
	}
	_, err := fmt.Fprintln(w, r.Format(layout))
	return err
}
