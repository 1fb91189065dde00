package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Chat metrics
	ChatRequestsTotal  *prometheus.CounterVec
	ChatTurnsTotal     prometheus.Counter
	GenerationDuration prometheus.Histogram
	GenerationErrors   prometheus.Counter

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsPruned prometheus.Counter

	// Store metrics
	StoreOperationDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ChatRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Total number of chat requests",
			},
			[]string{"status"},
		),
		ChatTurnsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_turns_total",
				Help: "Total number of turns appended to transcripts",
			},
		),
		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "generation_duration_seconds",
				Help:    "Duration of generation backend calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		GenerationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "generation_errors_total",
				Help: "Total number of failed generation backend calls",
			},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_active",
				Help: "Number of sessions currently in the store",
			},
		),
		SessionsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_pruned_total",
				Help: "Total number of sessions deleted by retention sweeps",
			},
		),

		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_operation_duration_seconds",
				Help:    "Duration of session store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.ChatRequestsTotal,
		m.ChatTurnsTotal,
		m.GenerationDuration,
		m.GenerationErrors,
		m.SessionsActive,
		m.SessionsPruned,
		m.StoreOperationDuration,
	)

	return m
}

// Handler returns an HTTP handler that serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
