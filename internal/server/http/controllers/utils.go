package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzbill/taglog/internal/kv"
	"github.com/rzbill/taglog/internal/namespace"
	"github.com/rzbill/taglog/internal/taglog"
)

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// writeErr maps engine errors onto HTTP status codes.
func writeErr(c *gin.Context, err error) {
	writeError(c, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, taglog.ErrInvalidQuery),
		errors.Is(err, taglog.ErrInvalidTag),
		errors.Is(err, namespace.ErrInvalidName),
		errors.Is(err, errBadParam):
		return http.StatusBadRequest
	case errors.Is(err, kv.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadParam = errors.New("bad parameter")

// parseLimit parses a limit string. Empty means no limit.
func parseLimit(limitStr string) (int, error) {
	if limitStr == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("%w: limit %q", errBadParam, limitStr)
	}
	// Negative limits are passed through so the engine rejects them.
	return limit, nil
}

// parseTimestamp accepts RFC3339 (with optional fraction) or raw Unix
// milliseconds. Empty yields the zero time.
func parseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", errBadParam, ts)
}

// parseAttr parses "key=value" into a single tagging attribute.
func parseAttr(s string) (taglog.TaggingAttributes, error) {
	if s == "" {
		return nil, nil
	}
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return nil, fmt.Errorf("%w: attr must be key=value, got %q", errBadParam, s)
	}
	return taglog.TA(k, v), nil
}

// parseID parses a record id path segment.
func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: id %q", errBadParam, s)
	}
	return id, nil
}
