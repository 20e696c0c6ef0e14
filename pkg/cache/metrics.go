package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the cache. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HitsTotal         *prometheus.CounterVec
	MissesTotal       *prometheus.CounterVec
	EvictionsTotal    *prometheus.CounterVec
	ExpirationsTotal  *prometheus.CounterVec
	RemoteErrorsTotal *prometheus.CounterVec
	RemoteHitsTotal   *prometheus.CounterVec
	Entries           *prometheus.GaugeVec
}

// NewMetrics creates and registers the cache metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_cache_hits_total",
				Help: "Total number of in-memory cache hits",
			},
			[]string{"namespace"},
		),
		MissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_cache_misses_total",
				Help: "Total number of in-memory cache misses",
			},
			[]string{"namespace"},
		),
		EvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_cache_evictions_total",
				Help: "Total number of capacity evictions",
			},
			[]string{"namespace"},
		),
		ExpirationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_cache_expirations_total",
				Help: "Total number of entries removed after their TTL elapsed",
			},
			[]string{"namespace"},
		),
		RemoteErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_cache_remote_errors_total",
				Help: "Total number of remote cache tier errors",
			},
			[]string{"namespace", "operation"},
		),
		RemoteHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursemetrics_cache_remote_hits_total",
				Help: "Total number of hits served by the remote cache tier",
			},
			[]string{"namespace"},
		),
		Entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coursemetrics_cache_entries",
				Help: "Current number of entries per namespace",
			},
			[]string{"namespace"},
		),
	}

	registry.MustRegister(
		m.HitsTotal,
		m.MissesTotal,
		m.EvictionsTotal,
		m.ExpirationsTotal,
		m.RemoteErrorsTotal,
		m.RemoteHitsTotal,
		m.Entries,
	)

	return m
}

func (m *Metrics) recordHit(ns Namespace) {
	if m == nil {
		return
	}
	m.HitsTotal.WithLabelValues(string(ns)).Inc()
}

func (m *Metrics) recordMiss(ns Namespace) {
	if m == nil {
		return
	}
	m.MissesTotal.WithLabelValues(string(ns)).Inc()
}

func (m *Metrics) recordEviction(ns Namespace) {
	if m == nil {
		return
	}
	m.EvictionsTotal.WithLabelValues(string(ns)).Inc()
}

func (m *Metrics) recordExpiration(ns Namespace, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ExpirationsTotal.WithLabelValues(string(ns)).Add(float64(n))
}

func (m *Metrics) recordRemoteHit(ns Namespace) {
	if m == nil {
		return
	}
	m.RemoteHitsTotal.WithLabelValues(string(ns)).Inc()
}

func (m *Metrics) recordRemoteError(ns Namespace, operation string) {
	if m == nil {
		return
	}
	m.RemoteErrorsTotal.WithLabelValues(string(ns), operation).Inc()
}

func (m *Metrics) setEntries(ns Namespace, n int) {
	if m == nil {
		return
	}
	m.Entries.WithLabelValues(string(ns)).Set(float64(n))
}
