// Package metrics defines the Prometheus collectors used by the statistics
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/resilience"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	StatsRequestsTotal *prometheus.CounterVec
	StatsLatency       *prometheus.HistogramVec
	StatsHits          *prometheus.HistogramVec
	IrrelevantHits     *prometheus.CounterVec
	ScopeCacheLookups  *prometheus.CounterVec
	ShardFailures      *prometheus.CounterVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	IssueEventsTotal   *prometheus.CounterVec
	IssuesIndexedTotal *prometheus.CounterVec
	IndexFlushesTotal  *prometheus.CounterVec
	ShardDocCount      *prometheus.GaugeVec
	ActiveShards       prometheus.Gauge

	VisibilityReloads   *prometheus.CounterVec
	ProjectOperations   *prometheus.CounterVec
	AnalyticsDropped    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		StatsRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_requests_total",
				Help: "Statistics requests by kind (field, matrix, search) and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		StatsLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stats_latency_seconds",
				Help:    "Statistics request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"kind", "cache_status"},
		),
		StatsHits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stats_hits",
				Help:    "Number of issues collected per statistics request.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"kind"},
		),
		IrrelevantHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_irrelevant_hits_total",
				Help: "Collected issues whose requested field is not visible in their scope.",
			},
			[]string{"kind"},
		),
		ScopeCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_scope_cache_lookups_total",
				Help: "Field visibility lookups answered by the per-request scope cache.",
			},
			[]string{"result"},
		),
		ShardFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_shard_failures_total",
				Help: "Shard executions that failed or timed out.",
			},
			[]string{"shard_id"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		IssueEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "issue_events_total",
				Help: "Issue events received by type and outcome (dispatched, unknown, failed, undecodable).",
			},
			[]string{"type", "outcome"},
		),
		IssuesIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "issues_indexed_total",
				Help: "Index operations by kind (upsert, delete, stale).",
			},
			[]string{"op"},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		ShardDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of live issues per shard.",
			},
			[]string{"shard_id"},
		),
		ActiveShards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_shards",
				Help: "Number of active index shards.",
			},
		),
		VisibilityReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visibility_reloads_total",
				Help: "Field visibility snapshot reloads by status.",
			},
			[]string{"status"},
		),
		ProjectOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "project_operations_total",
				Help: "Project registry operations by operation and status.",
			},
			[]string{"op", "status"},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Analytics events dropped because the buffer was full.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.StatsRequestsTotal,
		m.StatsLatency,
		m.StatsHits,
		m.IrrelevantHits,
		m.ScopeCacheLookups,
		m.ShardFailures,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IssueEventsTotal,
		m.IssuesIndexedTotal,
		m.IndexFlushesTotal,
		m.ShardDocCount,
		m.ActiveShards,
		m.VisibilityReloads,
		m.ProjectOperations,
		m.AnalyticsDropped,
		m.CircuitBreakerState,
	)

	return m
}

// BreakerObserver returns a resilience.CircuitBreakerConfig.OnStateChange
// hook that mirrors breaker state into CircuitBreakerState.
func (m *Metrics) BreakerObserver() func(name string, from, to resilience.State) {
	return func(name string, from, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
