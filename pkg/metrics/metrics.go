// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	IdentificationsTotal   *prometheus.CounterVec
	IdentificationLatency  *prometheus.HistogramVec
	MatchesReturned        prometheus.Histogram
	BatchSize              prometheus.Histogram
	BatchItemsTotal        *prometheus.CounterVec
	ReferenceSpecies       prometheus.Gauge
	ReferenceSequences     prometheus.Gauge
	IndexRebuildsTotal     *prometheus.CounterVec
	IndexBuildDuration     prometheus.Histogram
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	ResultsPersistedTotal  *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
		IdentificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identifications_total",
				Help: "Total identification queries by outcome (matched, no_match, invalid, timed_out, error).",
			},
			[]string{"outcome"},
		),
		IdentificationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identification_latency_seconds",
				Help:    "Per-query identification latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		MatchesReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "identification_matches_returned",
				Help:    "Number of species matches returned per query.",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
			},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "identification_batch_size",
				Help:    "Number of sequences per batch request.",
				Buckets: []float64{1, 2, 5, 10, 25, 50},
			},
		),
		BatchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identification_batch_items_total",
				Help: "Total batch items by per-item status (ok, error, timed_out).",
			},
			[]string{"status"},
		),
		ReferenceSpecies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reference_index_species",
				Help: "Number of species in the active reference index.",
			},
		),
		ReferenceSequences: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reference_index_sequences",
				Help: "Number of reference sequences in the active reference index.",
			},
		),
		IndexRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reference_index_rebuilds_total",
				Help: "Total reference index rebuilds by status.",
			},
			[]string{"status"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reference_index_build_duration_seconds",
				Help:    "Reference index build duration in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_hits_total",
				Help: "Total number of identification result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_misses_total",
				Help: "Total number of identification result cache misses.",
			},
		),
		ResultsPersistedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identification_results_persisted_total",
				Help: "Total identification results written to the store by status.",
			},
			[]string{"status"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IdentificationsTotal,
		m.IdentificationLatency,
		m.MatchesReturned,
		m.BatchSize,
		m.BatchItemsTotal,
		m.ReferenceSpecies,
		m.ReferenceSequences,
		m.IndexRebuildsTotal,
		m.IndexBuildDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ResultsPersistedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
