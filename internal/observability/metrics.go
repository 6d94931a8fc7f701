package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "impact_sim"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// simulation service.
type Metrics struct {
	Simulations        *prometheus.CounterVec // labels: outcome={success,invalid,failed,canceled}, location={land,ocean,unknown}
	SimulationDuration prometheus.Histogram

	// Location classification metrics.
	LocationLookups *prometheus.CounterVec // labels: outcome={land,ocean,error}
	LocationCache   *prometheus.CounterVec // labels: result={hit,miss}

	// Population provider metrics.
	PopulationRequests *prometheus.CounterVec // labels: provider, outcome={success,precondition,transport,provider,timeout,malformed_response}
	PollAttempts       prometheus.Histogram
	PopulationCache    *prometheus.CounterVec // labels: result={hit,miss,error}

	// Report publishing.
	ReportsPublished prometheus.Counter
	ReportsFailed    prometheus.Counter

	// Catalog metrics.
	CatalogSize            prometheus.Gauge
	CatalogRefreshFailures prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Simulations,
		m.SimulationDuration,
		m.LocationLookups,
		m.LocationCache,
		m.PopulationRequests,
		m.PollAttempts,
		m.PopulationCache,
		m.ReportsPublished,
		m.ReportsFailed,
		m.CatalogSize,
		m.CatalogRefreshFailures,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Impact simulations by outcome and location type.",
		}, []string{"outcome", "location"}),
		SimulationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of a complete impact simulation.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		LocationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_lookups_total",
			Help:      "Reverse-geocoding lookups by outcome.",
		}, []string{"outcome"}),
		LocationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_cache_total",
			Help:      "Location classification cache lookups by result.",
		}, []string{"result"}),
		PopulationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "population_requests_total",
			Help:      "Population provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		PollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "population_poll_attempts",
			Help:      "Poll attempts needed per raster population task.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 20, 30},
		}),
		PopulationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "population_cache_total",
			Help:      "Shared population cache lookups by result.",
		}, []string{"result"}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_published_total",
			Help:      "Impact reports written to Kafka.",
		}),
		ReportsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_failed_total",
			Help:      "Impact reports that could not be written to Kafka.",
		}),
		CatalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_asteroids",
			Help:      "Number of asteroids in the current catalog.",
		}),
		CatalogRefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refresh_failures_total",
			Help:      "Failed catalog refresh attempts.",
		}),
	}
}
