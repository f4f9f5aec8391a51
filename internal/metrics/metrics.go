package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Gateway metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	DispatchErrors   *prometheus.CounterVec

	// Ledger metrics
	DebitsTotal   *prometheus.CounterVec
	ReleasesTotal prometheus.Counter

	// Fallback metrics
	FallbackAttempts *prometheus.CounterVec

	// Builder metrics
	BuilderRunsTotal  *prometheus.CounterVec
	BuilderToolsTotal *prometheus.CounterVec
	BuilderRunSteps   prometheus.Histogram
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Gateway metrics
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_dispatch_total",
				Help: "Total number of provider dispatches",
			},
			[]string{"provider", "status"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_dispatch_duration_seconds",
				Help:    "Duration of provider dispatches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		DispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_dispatch_errors_total",
				Help: "Total number of classified dispatch errors",
			},
			[]string{"provider", "kind"},
		),

		// Ledger metrics
		DebitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_debits_total",
				Help: "Total number of credit debit attempts",
			},
			[]string{"feature", "status"},
		),
		ReleasesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_releases_total",
				Help: "Total number of refunded credit tickets",
			},
		),

		// Fallback metrics
		FallbackAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fallback_attempts_total",
				Help: "Total number of fallback candidate attempts",
			},
			[]string{"outcome"},
		),

		// Builder metrics
		BuilderRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_runs_total",
				Help: "Total number of builder agent runs",
			},
			[]string{"outcome"},
		),
		BuilderToolsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_tool_calls_total",
				Help: "Total number of builder tool executions",
			},
			[]string{"tool", "status"},
		),
		BuilderRunSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "builder_run_steps",
				Help:    "Model turns taken per builder run",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15},
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Gateway metrics
	m.registry.MustRegister(m.DispatchTotal)
	m.registry.MustRegister(m.DispatchDuration)
	m.registry.MustRegister(m.DispatchErrors)

	// Ledger metrics
	m.registry.MustRegister(m.DebitsTotal)
	m.registry.MustRegister(m.ReleasesTotal)

	// Fallback metrics
	m.registry.MustRegister(m.FallbackAttempts)

	// Builder metrics
	m.registry.MustRegister(m.BuilderRunsTotal)
	m.registry.MustRegister(m.BuilderToolsTotal)
	m.registry.MustRegister(m.BuilderRunSteps)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
