package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts state machine transitions.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	conflicts   prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order transitions by name and result.",
	}, []string{"transition", "result"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_version_conflicts_total",
		Help: "Order updates rejected by optimistic concurrency.",
	})
	reg.MustRegister(transitions, conflicts)
	return &OrderMetrics{transitions: transitions, conflicts: conflicts}
}

// IncTransition records a transition result such as "ok" or an error code.
func (o *OrderMetrics) IncTransition(transition, result string) {
	if o == nil || o.transitions == nil {
		return
	}
	o.transitions.WithLabelValues(normalizeLabel(transition), normalizeLabel(result)).Inc()
}

// IncConflict records a version mismatch.
func (o *OrderMetrics) IncConflict() {
	if o == nil || o.conflicts == nil {
		return
	}
	o.conflicts.Inc()
}
