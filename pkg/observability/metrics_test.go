package observability

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics.SnapshotComputeDuration == nil || metrics.SnapshotErrorsTotal == nil {
		t.Fatal("snapshot metrics not initialized")
	}

	t.Run("registering twice panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected duplicate registration to panic")
			}
		}()
		NewMetrics(registry)
	})
}

func TestMetrics_ObserveSnapshot(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveSnapshot("course", 20*time.Millisecond, nil)
	metrics.ObserveSnapshot("course", 40*time.Millisecond, nil)
	metrics.ObserveSnapshot("platform", time.Second, errors.New("boom"))

	if got := testutil.CollectAndCount(metrics.SnapshotComputeDuration); got != 2 {
		t.Errorf("expected 2 duration series, got %d", got)
	}
	if got := testutil.ToFloat64(metrics.SnapshotErrorsTotal.WithLabelValues("platform")); got != 1 {
		t.Errorf("expected 1 platform error, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.SnapshotErrorsTotal.WithLabelValues("course")); got != 0 {
		t.Errorf("expected no course errors, got %v", got)
	}
}

func TestMetrics_ObserveSourceQuery(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveSourceQuery("ListProgress", 5*time.Millisecond, nil)
	metrics.ObserveSourceQuery("ListProgress", 5*time.Millisecond, sql.ErrConnDone)

	expected := `
# HELP coursemetrics_source_queries_total Total number of data source queries
# TYPE coursemetrics_source_queries_total counter
coursemetrics_source_queries_total{operation="ListProgress",result="error"} 1
coursemetrics_source_queries_total{operation="ListProgress",result="success"} 1
`
	if err := testutil.CollectAndCompare(metrics.SourceQueriesTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter value: %v", err)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordDBStats(sql.DBStats{InUse: 3, Idle: 2, WaitCount: 7, WaitDuration: 1500 * time.Millisecond})
	metrics.RecordRedisPool(10, 4)
	metrics.RecordPlatformTotals(20, 150)

	checks := []struct {
		name  string
		gauge prometheus.Gauge
		want  float64
	}{
		{"db active", metrics.DBConnectionsActive, 3},
		{"db idle", metrics.DBConnectionsIdle, 2},
		{"db wait count", metrics.DBConnectionsWaitCount, 7},
		{"db wait duration", metrics.DBConnectionsWaitDuration, 1.5},
		{"redis total", metrics.RedisConnectionsTotal, 10},
		{"redis idle", metrics.RedisConnectionsIdle, 4},
		{"active users", metrics.ActiveUsersTotal, 20},
		{"enrollments", metrics.EnrollmentsTotal, 150},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.gauge); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveSnapshot("platform", time.Second, nil)
	metrics.ObserveSourceQuery("CountUsers", time.Second, nil)
	metrics.RecordDBStats(sql.DBStats{})
	metrics.RecordRedisPool(1, 1)
	metrics.RecordPlatformTotals(1, 1)
	metrics.AttachOTel(nil)

	called := false
	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("nil metrics middleware must pass requests through")
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	n, err := rw.Write([]byte("short and stout"))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if rw.statusCode != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Errorf("status not captured: %d / %d", rw.statusCode, rec.Code)
	}
	if rw.bytesWritten != n || n != 15 {
		t.Errorf("expected 15 bytes written, got %d", rw.bytesWritten)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/api/v1/analytics/courses/{id}", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["id"] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/cache/invalidate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	for _, id := range []string{"c1", "c2", "missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/analytics/courses/"+id, nil))
	}
	body := strings.NewReader(`{"entity_type":"course","entity_id":"c1"}`)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", body))

	expected := `
# HELP coursemetrics_http_requests_total Total number of HTTP requests
# TYPE coursemetrics_http_requests_total counter
coursemetrics_http_requests_total{method="GET",route="/api/v1/analytics/courses/{id}",status="200"} 2
coursemetrics_http_requests_total{method="GET",route="/api/v1/analytics/courses/{id}",status="404"} 1
coursemetrics_http_requests_total{method="POST",route="/api/v1/cache/invalidate",status="204"} 1
`
	if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter value: %v", err)
	}

	if got := testutil.CollectAndCount(metrics.HTTPRequestSize); got != 1 {
		t.Errorf("expected request size only for the POST, got %d series", got)
	}
	if got := testutil.CollectAndCount(metrics.HTTPRequestDuration); got != 2 {
		t.Errorf("expected 2 duration series, got %d", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.ObserveSnapshot("student", time.Millisecond, nil)

	router := mux.NewRouter()
	RegisterMetricsEndpoint(router, registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `coursemetrics_snapshot_compute_duration_seconds_count{dashboard="student",result="success"} 1`) {
		t.Errorf("snapshot histogram missing from exposition:\n%s", rec.Body.String())
	}
}
