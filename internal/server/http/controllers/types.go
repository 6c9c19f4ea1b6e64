package controllers

import (
	"encoding/json"
	"time"

	"github.com/rzbill/taglog/internal/taglog"
)

// Common request/response types for HTTP controllers

// logReq is the body of POST /v1/logs.
type logReq struct {
	Namespace string `json:"namespace"`
	// Message is either a JSON string (text) or any other JSON value
	// (structured).
	Message json.RawMessage `json:"message"`
	Tags    []string        `json:"tags"`
	Attrs   taglog.Attrs    `json:"attrs"`
	// Tagging attributes become both an attribute and a "key:value" tag.
	Tagging map[string]any `json:"tagging"`
	TS      *time.Time     `json:"ts"`
	// ExpireIn is a relative expiry in seconds; ExpireAt wins when both are set.
	ExpireIn float64    `json:"expireIn"`
	ExpireAt *time.Time `json:"expireAt"`
}

// sweepReq is the body of POST /v1/sweep. An empty namespace sweeps every
// known namespace.
type sweepReq struct {
	Namespace string     `json:"namespace"`
	Now       *time.Time `json:"now"`
}

// sweepResp reports one namespace's sweep.
type sweepResp struct {
	Namespace string   `json:"namespace"`
	Expired   int      `json:"expired"`
	Removed   int      `json:"removed"`
	Failures  []string `json:"failures,omitempty"`
}

func newSweepResp(ns string, res taglog.SweepResult) sweepResp {
	out := sweepResp{Namespace: ns, Expired: res.Expired, Removed: res.Removed}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	return out
}

// listResp wraps query results.
type listResp struct {
	Namespace string          `json:"namespace"`
	Records   []taglog.Record `json:"records"`
}
