package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsSplitsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("ready-order-sweep", 250*time.Millisecond, nil)
	m.ObserveRun("ready-order-sweep", time.Second, errors.New("db down"))
	m.ObserveSkippedCycle("sweep")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "result", "failure"); err != nil || got != 1 {
		t.Fatalf("expected one failure, got %v %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "result", "success"); err != nil || got != 1 {
		t.Fatalf("expected one success, got %v %v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "ready-order-sweep"); err != nil || got < 1.2 {
		t.Fatalf("unexpected duration sum %v %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cron_cycles_skipped_total", "schedule", "sweep"); err != nil || got != 1 {
		t.Fatalf("expected one skipped cycle, got %v %v", got, err)
	}
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObserveRelay("order.changed", RelayPublished)
	m.ObserveRelay("order.changed", RelayPublished)
	m.ObserveRelay("", RelayDeadLetter)
	m.ObserveBatch(20 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_relayed_total", "result", RelayPublished); err != nil || got != 2 {
		t.Fatalf("expected two published, got %v %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_relayed_total", "event_type", "unknown"); err != nil || got != 1 {
		t.Fatalf("blank event type should map to unknown, got %v %v", got, err)
	}
	if findMetricFamily(mfs, "outbox_batch_duration_seconds") == nil {
		t.Fatalf("batch histogram not exported")
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	NewCronJobMetrics(nil).ObserveRun("x", time.Second, nil)
	NewOutboxMetrics(nil).ObserveRelay("x", RelayRetry)
	var nilMetrics *OutboxMetrics
	nilMetrics.ObserveBatch(time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
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

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
