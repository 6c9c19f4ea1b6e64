package transports

import (
	"context"
	"time"

	"github.com/rzbill/taglog/internal/taglog"
)

// LogRequest describes one record to write.
type LogRequest struct {
	Namespace string         `json:"namespace,omitempty"`
	Message   any            `json:"message"`
	Tags      []string       `json:"tags,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
	Tagging   map[string]any `json:"tagging,omitempty"`
	TS        *time.Time     `json:"ts,omitempty"`
	ExpireIn  float64        `json:"expireIn,omitempty"`
	ExpireAt  *time.Time     `json:"expireAt,omitempty"`
}

// QueryRequest selects records; zero fields are unbounded.
type QueryRequest struct {
	Namespace string
	Tag       string
	// Attr is a single "key=value" tagging attribute.
	Attr   string
	MinTS  time.Time
	MaxTS  time.Time
	Limit  int
	Filter string
}

// ListenRequest narrows a live listen.
type ListenRequest struct {
	Namespace string
	Tag       string
	Filter    string
}

// SweepResult reports one namespace's sweep.
type SweepResult struct {
	Namespace string   `json:"namespace"`
	Expired   int      `json:"expired"`
	Removed   int      `json:"removed"`
	Failures  []string `json:"failures,omitempty"`
}

// Namespace is one known namespace.
type Namespace struct {
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// LogsTransport abstracts the transport used by the CLI.
type LogsTransport interface {
	Log(ctx context.Context, req LogRequest) (taglog.Record, error)
	Get(ctx context.Context, req QueryRequest) ([]taglog.Record, error)
	Latest(ctx context.Context, req QueryRequest) (rec taglog.Record, found bool, err error)
	Count(ctx context.Context, ns, tag string) (int64, error)
	Listen(ctx context.Context, req ListenRequest, onRecord func(taglog.Record) error) error
	Sweep(ctx context.Context, ns string) ([]SweepResult, error)
	Cleanup(ctx context.Context, ns string) error
	Namespaces(ctx context.Context) ([]Namespace, error)
}
