package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Assignment outcomes reported by the dispatcher.
const (
	OutcomeAssigned = "assigned"
	OutcomeConflict = "conflict"
	OutcomeNoDriver = "no_driver"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// DispatchMetrics tracks driver auto-assignment behaviour.
type DispatchMetrics struct {
	attempts     *prometheus.CounterVec
	fallbacks    prometheus.Counter
	feedEvents   *prometheus.CounterVec
	trackedOrder *prometheus.GaugeVec
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignment_attempts_total",
		Help: "Driver assignment attempts by outcome.",
	}, []string{"outcome"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_manual_fallback_total",
		Help: "Orders handed to admins after automatic assignment gave up.",
	})
	feedEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_feed_events_total",
		Help: "Change feed events processed by change type.",
	}, []string{"change"})
	tracked := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_tracked_orders",
		Help: "Orders currently held in each orchestrator's local view.",
	}, []string{"scope"})
	reg.MustRegister(attempts, fallbacks, feedEvents, tracked)
	return &DispatchMetrics{
		attempts:     attempts,
		fallbacks:    fallbacks,
		feedEvents:   feedEvents,
		trackedOrder: tracked,
	}
}

// IncAttempt counts one assignment attempt with the given outcome.
func (d *DispatchMetrics) IncAttempt(outcome string) {
	if d == nil || d.attempts == nil {
		return
	}
	d.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (d *DispatchMetrics) IncFallback() {
	if d == nil || d.fallbacks == nil {
		return
	}
	d.fallbacks.Inc()
}

func (d *DispatchMetrics) IncFeedEvent(change string) {
	if d == nil || d.feedEvents == nil {
		return
	}
	d.feedEvents.WithLabelValues(normalizeLabel(change)).Inc()
}

// SetTrackedOrders reports the size of one orchestrator's order view.
func (d *DispatchMetrics) SetTrackedOrders(scope string, n int) {
	if d == nil || d.trackedOrder == nil {
		return
	}
	d.trackedOrder.WithLabelValues(normalizeLabel(scope)).Set(float64(n))
}
