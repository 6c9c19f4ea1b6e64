// Package metrics exposes engine, storage and HTTP metrics through a
// Prometheus registry owned by the runtime.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
	"github.com/rzbill/taglog/internal/taglog"
)

var (
	_ taglog.Metrics          = (*Metrics)(nil)
	_ pebblestore.MetricsHook = (*Metrics)(nil)
)

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	recordsWritten  *prometheus.CounterVec
	queriesServed   *prometheus.CounterVec
	queryRecords    *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	sweptTotal      *prometheus.CounterVec
	archiveFailures *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
	broadcastRecv   *prometheus.CounterVec

	storeReadBytes   prometheus.Counter
	storeReadSeconds prometheus.Histogram
	storeCommitOps   prometheus.Counter
	storeCommitBytes prometheus.Counter
	storeCommitTime  prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	ns := []string{"namespace"}

	return &Metrics{
		registry: reg,
		recordsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taglog_records_written_total",
			Help: "Records written",
		}, ns),
		queriesServed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taglog_queries_total",
			Help: "Queries served",
		}, ns),
		queryRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taglog_query_records_total",
			Help: "Records returned by queries",
		}, ns),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taglog_query_duration_seconds",
			Help:    "Query latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, ns),
		sweptTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taglog_swept_records_total",
			Help: "Expired records removed by sweeps",
		}, ns),
		archiveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taglog_archive_failures_total",
			Help: "Expired records kept because archiving failed",
		}, ns),
		broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taglog_broadcasts_total",
			Help: "Records published to listeners",
		}, ns),
		broadcastRecv: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taglog_broadcast_deliveries_total",
			Help: "Per-subscriber deliveries accepted",
		}, ns),
		storeReadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "taglog_store_read_bytes_total",
			Help: "Bytes read from Pebble",
		}),
		storeReadSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taglog_store_read_duration_seconds",
			Help:    "Pebble read latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		storeCommitOps: f.NewCounter(prometheus.CounterOpts{
			Name: "taglog_store_commit_ops_total",
			Help: "Operations committed to Pebble",
		}),
		storeCommitBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "taglog_store_commit_bytes_total",
			Help: "Batch bytes committed to Pebble",
		}),
		storeCommitTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taglog_store_commit_duration_seconds",
			Help:    "Pebble batch commit latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taglog_http_requests_total",
			Help: "HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taglog_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordWritten(namespace string) {
	m.recordsWritten.WithLabelValues(namespace).Inc()
}

func (m *Metrics) QueryServed(namespace string, returned int, elapsed time.Duration) {
	m.queriesServed.WithLabelValues(namespace).Inc()
	m.queryRecords.WithLabelValues(namespace).Add(float64(returned))
	m.queryDuration.WithLabelValues(namespace).Observe(elapsed.Seconds())
}

func (m *Metrics) SweepDone(namespace string, removed, failed int) {
	m.sweptTotal.WithLabelValues(namespace).Add(float64(removed))
	m.archiveFailures.WithLabelValues(namespace).Add(float64(failed))
}

func (m *Metrics) Published(namespace string, receivers int) {
	m.broadcasts.WithLabelValues(namespace).Inc()
	m.broadcastRecv.WithLabelValues(namespace).Add(float64(receivers))
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storeReadBytes.Add(float64(bytes))
	m.storeReadSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.storeCommitOps.Add(float64(numOps))
	m.storeCommitBytes.Add(float64(bytes))
	m.storeCommitTime.Observe(elapsed.Seconds())
}

// GinMiddleware records request count and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
