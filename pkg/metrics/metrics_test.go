package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPaymentMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.ObserveCapture("square", OutcomeSucceeded, 250*time.Millisecond)
	m.ObserveCapture("square", OutcomeFailed, 100*time.Millisecond)
	m.BreakerTransition("square", "open")
	m.IncReconcile("converged")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "payment_captures_total", map[string]string{"processor": "square", "outcome": OutcomeSucceeded}); err != nil {
		t.Fatalf("fetch captures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected succeeded=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "payment_capture_duration_seconds", "processor", "square"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0.3 {
		t.Fatalf("expected duration sum > 0.3, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "payment_breaker_transitions_total", map[string]string{"processor": "square", "to": "open"}); err != nil || got != 1 {
		t.Fatalf("expected one breaker transition, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "payment_reconciliations_total", map[string]string{"outcome": "converged"}); err != nil || got != 1 {
		t.Fatalf("expected one reconciliation, got %f err=%v", got, err)
	}
}

func TestOrderMetricsCountsTransitionsAndConflicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncTransition("mark_paid", "ok")
	m.IncTransition("mark_paid", "ALREADY_PAID")
	m.IncConflict()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "order_transitions_total", map[string]string{"transition": "mark_paid", "result": "ALREADY_PAID"}); err != nil || got != 1 {
		t.Fatalf("expected one rejected transition, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "order_version_conflicts_total", nil); err != nil || got != 1 {
		t.Fatalf("expected one conflict, got %f err=%v", got, err)
	}
}

func TestOutboxMetricsLabelsUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("")
	m.IncDeadLettered("max_attempts")
	m.ObservePublish("orders", time.Millisecond)
	m.IncFailed("order_paid")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_published_total", map[string]string{"event_type": "unknown"}); err != nil || got != 1 {
		t.Fatalf("expected unknown label, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var p *PaymentMetrics
	p.ObserveCapture("stripe", OutcomeError, time.Second)
	p.BreakerTransition("stripe", "open")
	var o *OrderMetrics
	o.IncTransition("deliver", "ok")
	o.IncConflict()
	var ob *OutboxMetrics
	ob.IncPublished("order_paid")

	unregistered := NewPaymentMetrics(nil)
	unregistered.ObserveCapture("stripe", OutcomeError, time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), map[string]string{label: value}) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(labels []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, label := range labels {
		if v, ok := want[label.GetName()]; ok && v == label.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
