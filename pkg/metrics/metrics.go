// Package metrics defines the Prometheus collectors for the drop lookup
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	QueryHits            *prometheus.HistogramVec
	ReportCacheHits      prometheus.Counter
	ReportCacheMisses    prometheus.Counter
	IndexLoadsTotal      *prometheus.CounterVec
	IndexLoadDuration    prometheus.Histogram
	IndexEntries         *prometheus.GaugeVec
	CacheWriteFailures   prometheus.Counter
	AnalyticsDropped     prometheus.Counter
	RateLimited          prometheus.Counter
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
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
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
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
				Name: "drop_queries_total",
				Help: "Total lookups by kind (drop_search, monster_search, rewrite) and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drop_query_latency_seconds",
				Help:    "Drop lookup latency in seconds.",
				Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"kind", "cache_status"},
		),
		QueryHits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drop_query_hits",
				Help:    "Number of matched items or monsters per lookup.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"kind"},
		),
		ReportCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "report_cache_hits_total",
				Help: "Total number of rendered report cache hits.",
			},
		),
		ReportCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "report_cache_misses_total",
				Help: "Total number of rendered report cache misses.",
			},
		),
		IndexLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "item_index_loads_total",
				Help: "Item index initialisations by source (cache, build).",
			},
			[]string{"source"},
		),
		IndexLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "item_index_load_duration_seconds",
				Help:    "Time to load or build the item index.",
				Buckets: prometheus.DefBuckets,
			},
		),
		IndexEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "item_index_entries",
				Help: "Item index keys by entry kind (canonical, alias).",
			},
			[]string{"kind"},
		),
		CacheWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "item_index_cache_write_failures_total",
				Help: "Failed attempts to persist the item index cache.",
			},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Query events dropped because the collector buffer was full.",
			},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_requests_rate_limited_total",
				Help: "Query requests rejected by the per-client rate limit.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryHits,
		m.ReportCacheHits,
		m.ReportCacheMisses,
		m.IndexLoadsTotal,
		m.IndexLoadDuration,
		m.IndexEntries,
		m.CacheWriteFailures,
		m.AnalyticsDropped,
		m.RateLimited,
	)

	return m
}

// ObserveQuery records one lookup.
func (m *Metrics) ObserveQuery(kind, outcome string, hits int, cacheHit bool, d time.Duration) {
	if m == nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		m.ReportCacheHits.Inc()
	} else {
		m.ReportCacheMisses.Inc()
	}
	m.QueriesTotal.WithLabelValues(kind, outcome).Inc()
	m.QueryLatency.WithLabelValues(kind, cacheStatus).Observe(d.Seconds())
	m.QueryHits.WithLabelValues(kind).Observe(float64(hits))
}

// ObserveIndexLoad records a completed index initialisation.
func (m *Metrics) ObserveIndexLoad(source string, canonical, aliases int, d time.Duration) {
	if m == nil {
		return
	}
	m.IndexLoadsTotal.WithLabelValues(source).Inc()
	m.IndexLoadDuration.Observe(d.Seconds())
	m.IndexEntries.WithLabelValues("canonical").Set(float64(canonical))
	m.IndexEntries.WithLabelValues("alias").Set(float64(aliases))
}

// IncCacheWriteFailure counts a failed cache save.
func (m *Metrics) IncCacheWriteFailure() {
	if m == nil {
		return
	}
	m.CacheWriteFailures.Inc()
}

// IncAnalyticsDropped counts a dropped analytics event.
func (m *Metrics) IncAnalyticsDropped() {
	if m == nil {
		return
	}
	m.AnalyticsDropped.Inc()
}

// IncRateLimited counts a request rejected by the rate limiter.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
