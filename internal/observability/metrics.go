// File: internal/observability/metrics.go
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "specter"

// Tick outcomes.
const (
	TickRan       = "ran"
	TickSkipped   = "skipped"
	TickNoop      = "noop"
	TickCompleted = "completed"
	TickFailed    = "failed"
	TickLockLost  = "lock_lost"
)

// Provider call outcomes.
const (
	ProviderFound   = "found"
	ProviderAbsent  = "absent"
	ProviderTimeout = "timeout"
	ProviderError   = "error"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps unit tests free of registry setup.
type Metrics struct {
	// TicksTotal counts tick invocations by outcome.
	TicksTotal *prometheus.CounterVec
	// StepsTotal counts finished steps by step and terminal status.
	StepsTotal *prometheus.CounterVec
	// StepDuration measures how long each step ran.
	StepDuration *prometheus.HistogramVec
	// ProviderCalls counts provider adapter calls by provider and outcome.
	ProviderCalls *prometheus.CounterVec
	// EnhancerFallbacks counts AI enhancer fallbacks by reason.
	EnhancerFallbacks *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "scheduler",
				Name:      "ticks_total",
				Help:      "Tick invocations by outcome",
			},
			[]string{"outcome"},
		),
		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "steps_total",
				Help:      "Finished pipeline steps by step and status",
			},
			[]string{"step", "status"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "step_duration_seconds",
				Help:      "Pipeline step duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"step"},
		),
		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "providers",
				Name:      "calls_total",
				Help:      "Provider adapter calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		EnhancerFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "enhancer",
				Name:      "fallbacks_total",
				Help:      "AI enhancer fallbacks to the heuristic result by reason",
			},
			[]string{"reason"},
		),
	}
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns collectors registered with the default Prometheus
// registry. Safe to call repeatedly.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Step(step, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(step, status).Inc()
	m.StepDuration.WithLabelValues(step).Observe(took.Seconds())
}

func (m *Metrics) ProviderCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) EnhancerFallback(reason string) {
	if m == nil {
		return
	}
	m.EnhancerFallbacks.WithLabelValues(reason).Inc()
}
