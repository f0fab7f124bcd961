// Package metrics defines the Prometheus collectors shared by the searcher
// and indexer services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of a service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	QueryResultsCount    prometheus.Histogram
	QueryCandidates      prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	NodeCacheEntries     prometheus.Gauge
	ShardFailuresTotal   *prometheus.CounterVec
	OpenParts            *prometheus.GaugeVec
	ActiveShards         prometheus.Gauge
	DocsIndexedTotal     prometheus.Counter
	IndexBuildDuration   *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
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
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_queries_total",
				Help: "Total queries by outcome (ok, zero_result, invalid, timeout, error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_query_latency_seconds",
				Help:    "Query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_query_results",
				Help:    "Number of ranked documents returned per query.",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000},
			},
		),
		QueryCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_query_candidates",
				Help:    "Number of candidate documents visited per query.",
				Buckets: prometheus.ExponentialBuckets(1, 10, 8),
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		NodeCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "node_cache_entries",
				Help: "Number of materialized nodes held across all shards.",
			},
		),
		ShardFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_failures_total",
				Help: "Total shard failures that aborted a query.",
			},
			[]string{"shard"},
		),
		OpenParts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_open_parts",
				Help: "Number of open index parts per shard.",
			},
			[]string{"shard"},
		),
		ActiveShards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_shards",
				Help: "Number of open index shards.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Index build duration in seconds by status.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"status"},
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
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.QueryCandidates,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.NodeCacheEntries,
		m.ShardFailuresTotal,
		m.OpenParts,
		m.ActiveShards,
		m.DocsIndexedTotal,
		m.IndexBuildDuration,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
