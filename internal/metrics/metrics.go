// Package metrics provides Prometheus metrics for provider runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace for all reelscout metrics
	namespace = "reelscout"
)

// Metrics holds the collectors the runner and the inliner report to.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// AttemptsTotal counts adapter invocations by provider and outcome
	AttemptsTotal *prometheus.CounterVec

	// AttemptDuration tracks how long each adapter invocation took
	AttemptDuration *prometheus.HistogramVec

	// RunsTotal counts coordinator runs by entry point and result
	RunsTotal *prometheus.CounterVec

	// VariantsTotal counts inlined and degraded HLS variants
	VariantsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Total number of provider attempts",
			},
			[]string{"provider", "outcome"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_attempt_duration_seconds",
				Help:      "Duration of provider attempts in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of resolution runs",
			},
			[]string{"entry", "result"},
		),
		VariantsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hls_variants_total",
				Help:      "Total number of HLS variants processed by the inliner",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.AttemptsTotal, m.AttemptDuration, m.RunsTotal, m.VariantsTotal)
	return m
}

// ObserveAttempt records one adapter invocation.
func (m *Metrics) ObserveAttempt(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(provider, outcome).Inc()
	m.AttemptDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRun records the result of one coordinator run.
func (m *Metrics) ObserveRun(entry, result string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(entry, result).Inc()
}

// ObserveVariants records how many variants an inliner pass inlined and degraded.
func (m *Metrics) ObserveVariants(inlined, degraded int) {
	if m == nil {
		return
	}
	m.VariantsTotal.WithLabelValues("inlined").Add(float64(inlined))
	m.VariantsTotal.WithLabelValues("degraded").Add(float64(degraded))
}
