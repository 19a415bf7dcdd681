package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
	OutcomeConverged = "converged"
	// OutcomeReconcileRequired marks money that moved without the order being settled.
	OutcomeReconcileRequired = "reconcile_required"
)

// PaymentMetrics records processor capture latency and outcomes.
type PaymentMetrics struct {
	duration      *prometheus.HistogramVec
	captures      *prometheus.CounterVec
	breakerStates *prometheus.CounterVec
	reconcileRuns *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_capture_duration_seconds",
		Help:    "Duration of processor capture calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"processor"})
	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_captures_total",
		Help: "Capture attempts by processor and outcome.",
	}, []string{"processor", "outcome"})
	breakerStates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_breaker_transitions_total",
		Help: "Circuit breaker state transitions by processor.",
	}, []string{"processor", "to"})
	reconcileRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Reconciliation results by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, captures, breakerStates, reconcileRuns)
	return &PaymentMetrics{
		duration:      duration,
		captures:      captures,
		breakerStates: breakerStates,
		reconcileRuns: reconcileRuns,
	}
}

// ObserveCapture records one processor call.
func (p *PaymentMetrics) ObserveCapture(processor, outcome string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	processor = normalizeLabel(processor)
	p.duration.WithLabelValues(processor).Observe(duration.Seconds())
	p.captures.WithLabelValues(processor, normalizeLabel(outcome)).Inc()
}

// BreakerTransition counts a breaker moving into state to.
func (p *PaymentMetrics) BreakerTransition(processor, to string) {
	if p == nil || p.breakerStates == nil {
		return
	}
	p.breakerStates.WithLabelValues(normalizeLabel(processor), normalizeLabel(to)).Inc()
}

// IncReconcile counts a reconciliation result.
func (p *PaymentMetrics) IncReconcile(outcome string) {
	if p == nil || p.reconcileRuns == nil {
		return
	}
	p.reconcileRuns.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
