// Package metrics instruments the gateway with a self-contained prometheus
// registry. A nil *Metrics disables collection; every observer method is
// safe to call on it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage duration spans milliseconds for extraction up to minutes for a full
// execution batch.
var stageBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}

// Metrics holds the gateway collectors on a private registry, keeping the
// surface independent of anything else the process registers globally.
type Metrics struct {
	registry *prometheus.Registry

	scenarios      *prometheus.CounterVec
	adapterResults *prometheus.CounterVec
	retries        prometheus.Counter
	fixes          *prometheus.CounterVec
	quarantined    prometheus.Gauge
	stageDuration  *prometheus.HistogramVec
	runs           *prometheus.CounterVec
}

// New creates the gateway collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uatgate_scenarios_total",
			Help: "Decided scenario verdicts by status.",
		}, []string{"status"}),
		adapterResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uatgate_adapter_results_total",
			Help: "Unit results by adapter and raw verdict.",
		}, []string{"adapter", "verdict"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uatgate_retries_total",
			Help: "Unit retries after a timeout.",
		}),
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uatgate_fixes_total",
			Help: "Fix attempts by terminal outcome.",
		}, []string{"outcome"}),
		quarantined: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uatgate_quarantined_scenarios",
			Help: "Scenarios currently quarantined by the flaky detector.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uatgate_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage.",
			Buckets: stageBuckets,
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uatgate_runs_total",
			Help: "Completed runs by terminal outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.scenarios,
		m.adapterResults,
		m.retries,
		m.fixes,
		m.quarantined,
		m.stageDuration,
		m.runs,
	)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ScenarioDecided counts one decided scenario verdict.
func (m *Metrics) ScenarioDecided(status string) {
	if m == nil {
		return
	}
	m.scenarios.WithLabelValues(status).Inc()
}

// AdapterResult counts one unit result.
func (m *Metrics) AdapterResult(adapter, verdict string) {
	if m == nil {
		return
	}
	m.adapterResults.WithLabelValues(adapter, verdict).Inc()
}

// Retry counts one timeout retry.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// FixResolved counts one fix reaching a terminal state.
func (m *Metrics) FixResolved(outcome string) {
	if m == nil {
		return
	}
	m.fixes.WithLabelValues(outcome).Inc()
}

// SetQuarantined records the current quarantine population.
func (m *Metrics) SetQuarantined(n int) {
	if m == nil {
		return
	}
	m.quarantined.Set(float64(n))
}

// StageCompleted records the wall time one stage took.
func (m *Metrics) StageCompleted(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunCompleted counts one run reaching a terminal stage.
func (m *Metrics) RunCompleted(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}
