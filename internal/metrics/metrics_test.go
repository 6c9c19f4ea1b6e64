package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEngineCounters(t *testing.T) {
	m := New()
	m.RecordWritten("ns")
	m.RecordWritten("ns")
	m.QueryServed("ns", 3, time.Millisecond)
	m.SweepDone("ns", 4, 1)
	m.Published("ns", 2)
	m.ObserveBatchCommit(time.Millisecond, 5, 100)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"written", testutil.ToFloat64(m.recordsWritten.WithLabelValues("ns")), 2},
		{"queries", testutil.ToFloat64(m.queriesServed.WithLabelValues("ns")), 1},
		{"query records", testutil.ToFloat64(m.queryRecords.WithLabelValues("ns")), 3},
		{"swept", testutil.ToFloat64(m.sweptTotal.WithLabelValues("ns")), 4},
		{"archive failures", testutil.ToFloat64(m.archiveFailures.WithLabelValues("ns")), 1},
		{"deliveries", testutil.ToFloat64(m.broadcastRecv.WithLabelValues("ns")), 2},
		{"commit ops", testutil.ToFloat64(m.storeCommitOps), 5},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestHandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ping status %d", w.Code)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/ping", "200")); got != 1 {
		t.Fatalf("http requests = %v", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "taglog_http_requests_total") {
		t.Fatalf("metrics output missing collector:\n%s", w.Body.String())
	}
}
