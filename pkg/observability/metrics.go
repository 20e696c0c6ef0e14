package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds all Prometheus metrics outside the cache package.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Analytics metrics
	SnapshotComputeDuration *prometheus.HistogramVec
	SnapshotErrorsTotal     *prometheus.CounterVec
	SourceQueriesTotal      *prometheus.CounterVec
	SourceQueryDuration     *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsTotal prometheus.Gauge
	RedisConnectionsIdle  prometheus.Gauge

	// Business metrics
	ActiveUsersTotal prometheus.Gauge
	EnrollmentsTotal prometheus.Gauge

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursemetrics_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursemetrics_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursemetrics_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		SnapshotComputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursemetrics_snapshot_compute_duration_seconds",
				Help:    "Time spent computing an analytics snapshot on a cache miss",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"dashboard", "result"},
		),
		SnapshotErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_snapshot_errors_total",
				Help: "Total number of failed snapshot computations",
			},
			[]string{"dashboard"},
		),
		SourceQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_source_queries_total",
				Help: "Total number of data source queries",
			},
			[]string{"operation", "result"},
		),
		SourceQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursemetrics_source_query_duration_seconds",
				Help:    "Data source query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursemetrics_db_connections_active",
				Help: "Number of in-use database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursemetrics_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursemetrics_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursemetrics_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		RedisConnectionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursemetrics_redis_connections_total",
				Help: "Number of connections in the Redis pool",
			},
		),
		RedisConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursemetrics_redis_connections_idle",
				Help: "Number of idle connections in the Redis pool",
			},
		),

		ActiveUsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursemetrics_active_users",
				Help: "Users active in the trailing window, from the last platform snapshot",
			},
		),
		EnrollmentsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coursemetrics_enrollments",
				Help: "Total enrollments, from the last platform snapshot",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.SnapshotComputeDuration,
		m.SnapshotErrorsTotal,
		m.SourceQueriesTotal,
		m.SourceQueryDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsTotal,
		m.RedisConnectionsIdle,
		m.ActiveUsersTotal,
		m.EnrollmentsTotal,
	)

	return m
}

// AttachOTel mirrors snapshot and source observations into OpenTelemetry
// instruments as well
func (m *Metrics) AttachOTel(o *OTelMetrics) {
	if m == nil {
		return
	}
	m.otel = o
}

func resultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// ObserveSnapshot records one snapshot computation
func (m *Metrics) ObserveSnapshot(dashboard string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SnapshotComputeDuration.WithLabelValues(dashboard, resultLabel(err)).Observe(d.Seconds())
	if err != nil {
		m.SnapshotErrorsTotal.WithLabelValues(dashboard).Inc()
	}
	m.otel.recordSnapshot(dashboard, d, err)
}

// ObserveSourceQuery records one data source query
func (m *Metrics) ObserveSourceQuery(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SourceQueriesTotal.WithLabelValues(operation, resultLabel(err)).Inc()
	m.SourceQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.otel.recordSourceQuery(operation, d, err)
}

// RecordDBStats copies connection pool statistics into the DB gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// RecordRedisPool copies Redis pool statistics into the Redis gauges
func (m *Metrics) RecordRedisPool(total, idle uint32) {
	if m == nil {
		return
	}
	m.RedisConnectionsTotal.Set(float64(total))
	m.RedisConnectionsIdle.Set(float64(idle))
}

// RecordPlatformTotals publishes headline numbers of a platform snapshot
func (m *Metrics) RecordPlatformTotals(activeUsers, enrollments int64) {
	if m == nil {
		return
	}
	m.ActiveUsersTotal.Set(float64(activeUsers))
	m.EnrollmentsTotal.Set(float64(enrollments))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched mux route template so that path
// parameters do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It is meant for mux.Router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeLabel(r)

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
