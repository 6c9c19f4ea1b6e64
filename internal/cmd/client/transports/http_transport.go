package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rzbill/taglog/internal/taglog"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// StatusError carries a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// HTTPTransport talks to the taglog REST gateway.
type HTTPTransport struct {
	baseURL func() string
	client  *http.Client
}

// NewHTTPTransport returns a transport resolving the base URL lazily.
func NewHTTPTransport(baseURL func() string) *HTTPTransport {
	return &HTTPTransport{baseURL: baseURL, client: &http.Client{}}
}

var _ LogsTransport = (*HTTPTransport)(nil)

func (t *HTTPTransport) url(path string, q url.Values) string {
	u := strings.TrimRight(t.baseURL(), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do sends a request and decodes a JSON response into out (when non-nil).
func (t *HTTPTransport) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.url(path, q), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var e struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&e)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, e.Error)
	}
	return &StatusError{Code: resp.StatusCode, Message: e.Error}
}

func (r QueryRequest) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("namespace", r.Namespace)
	set("tag", r.Tag)
	set("attr", r.Attr)
	set("filter", r.Filter)
	if !r.MinTS.IsZero() {
		q.Set("min_ts", r.MinTS.UTC().Format(time.RFC3339Nano))
	}
	if !r.MaxTS.IsZero() {
		q.Set("max_ts", r.MaxTS.UTC().Format(time.RFC3339Nano))
	}
	if r.Limit != 0 {
		q.Set("limit", strconv.Itoa(r.Limit))
	}
	return q
}

func (t *HTTPTransport) Log(ctx context.Context, req LogRequest) (taglog.Record, error) {
	var rec taglog.Record
	err := t.do(ctx, http.MethodPost, "/v1/logs", nil, req, &rec)
	return rec, err
}

func (t *HTTPTransport) Get(ctx context.Context, req QueryRequest) ([]taglog.Record, error) {
	var out struct {
		Records []taglog.Record `json:"records"`
	}
	if err := t.do(ctx, http.MethodGet, "/v1/logs", req.values(), nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (t *HTTPTransport) Latest(ctx context.Context, req QueryRequest) (taglog.Record, bool, error) {
	var rec taglog.Record
	err := t.do(ctx, http.MethodGet, "/v1/logs/latest", req.values(), nil, &rec)
	if errors.Is(err, ErrNotFound) {
		return taglog.Record{}, false, nil
	}
	if err != nil {
		return taglog.Record{}, false, err
	}
	return rec, true, nil
}

func (t *HTTPTransport) Count(ctx context.Context, ns, tag string) (int64, error) {
	q := QueryRequest{Namespace: ns, Tag: tag}.values()
	var out struct {
		Count int64 `json:"count"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/logs/count", q, nil, &out)
	return out.Count, err
}

func (t *HTTPTransport) Sweep(ctx context.Context, ns string) ([]SweepResult, error) {
	var out struct {
		Results []SweepResult `json:"results"`
	}
	err := t.do(ctx, http.MethodPost, "/v1/sweep", nil, map[string]string{"namespace": ns}, &out)
	return out.Results, err
}

func (t *HTTPTransport) Cleanup(ctx context.Context, ns string) error {
	return t.do(ctx, http.MethodDelete, "/v1/logs", QueryRequest{Namespace: ns}.values(), nil, nil)
}

func (t *HTTPTransport) Namespaces(ctx context.Context) ([]Namespace, error) {
	var out struct {
		Namespaces []Namespace `json:"namespaces"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/namespaces", nil, nil, &out)
	return out.Namespaces, err
}

// Listen reads the SSE stream until ctx is done, the server ends it, or
// onRecord fails.
func (t *HTTPTransport) Listen(ctx context.Context, req ListenRequest, onRecord func(taglog.Record) error) error {
	q := QueryRequest{Namespace: req.Namespace, Tag: req.Tag, Filter: req.Filter}.values()
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url("/v1/logs/listen", q), nil)
	if err != nil {
		return err
	}
	hreq.Header.Set("Accept", "text/event-stream")
	resp, err := t.client.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			ev, payload := event, data
			event, data = "", ""
			switch ev {
			case "record":
				var rec taglog.Record
				if err := json.Unmarshal([]byte(payload), &rec); err != nil {
					return fmt.Errorf("decode record: %w", err)
				}
				if err := onRecord(rec); err != nil {
					return err
				}
			case "error":
				return fmt.Errorf("listen: server error: %s", payload)
			}
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
