// Package metrics defines the Prometheus metric collectors used by the
// indexer, searcher and typeahead binaries and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so libraries can take one unconditionally.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	ResultsTruncated     prometheus.Counter
	ResultsSuperseded    prometheus.Counter
	ShardLoadsTotal      *prometheus.CounterVec
	ShardLoadDuration    prometheus.Histogram
	ShardsCached         prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	SymbolsIndexedTotal  prometheus.Counter
	ShardsWrittenTotal   *prometheus.CounterVec
	ShardEntryCount      *prometheus.GaugeVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total symbol queries by outcome (hit, zero_result, degraded, idle).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Symbol query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
			},
			[]string{"shard_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of references returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		ResultsTruncated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_results_truncated_total",
				Help: "Queries whose reference list was cut to the result limit.",
			},
		),
		ResultsSuperseded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_results_superseded_total",
				Help: "Completed queries discarded because a newer keystroke arrived.",
			},
		),
		ShardLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_loads_total",
				Help: "Shard loads by result (ok, not_found, corrupt, schema, timeout, unavailable).",
			},
			[]string{"result"},
		),
		ShardLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shard_load_duration_seconds",
				Help:    "Time to fetch and decode one shard.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ShardsCached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shards_cached",
				Help: "Number of shards published in the in-process store.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shard_cache_hits_total",
				Help: "Total number of shared shard-cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shard_cache_misses_total",
				Help: "Total number of shared shard-cache misses.",
			},
		),
		SymbolsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "symbols_indexed_total",
				Help: "Total symbols added to the shard builder.",
			},
		),
		ShardsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shards_written_total",
				Help: "Total shard files written by status.",
			},
			[]string{"status"},
		),
		ShardEntryCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_entry_count",
				Help: "Number of entries per shard in the last build.",
			},
			[]string{"shard_id"},
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
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.ResultsTruncated,
		m.ResultsSuperseded,
		m.ShardLoadsTotal,
		m.ShardLoadDuration,
		m.ShardsCached,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SymbolsIndexedTotal,
		m.ShardsWrittenTotal,
		m.ShardEntryCount,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveShardLoad records one finished shard load.
func (m *Metrics) ObserveShardLoad(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ShardLoadsTotal.WithLabelValues(result).Inc()
	m.ShardLoadDuration.Observe(d.Seconds())
}

// SetShardsCached reports the size of the in-process shard store.
func (m *Metrics) SetShardsCached(n int) {
	if m == nil {
		return
	}
	m.ShardsCached.Set(float64(n))
}

// ObserveQuery records one answered query.
func (m *Metrics) ObserveQuery(outcome, shardStatus string, results int, truncated bool, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	m.SearchLatency.WithLabelValues(shardStatus).Observe(d.Seconds())
	m.SearchResultsCount.Observe(float64(results))
	if truncated {
		m.ResultsTruncated.Inc()
	}
}

// IncSuperseded counts a result dropped by last-write-wins.
func (m *Metrics) IncSuperseded() {
	if m == nil {
		return
	}
	m.ResultsSuperseded.Inc()
}

// IncCache counts a shared-cache lookup.
func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// SetBreakerState mirrors a circuit breaker's state into a gauge.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
