package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay results reported by the outbox publisher.
const (
	RelayPublished  = "published"
	RelayRetry      = "retry"
	RelayDeadLetter = "dead_letter"
)

// OutboxMetrics tracks rows moved from the outbox table to Pub/Sub.
type OutboxMetrics struct {
	relayed *prometheus.CounterVec
	batch   prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_relayed_total",
		Help: "Outbox rows handled by event type and result.",
	}, []string{"event_type", "result"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Time spent claiming and relaying one outbox batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(relayed, batch)
	return &OutboxMetrics{relayed: relayed, batch: batch}
}

func (o *OutboxMetrics) ObserveRelay(eventType, result string) {
	if o == nil || o.relayed == nil {
		return
	}
	o.relayed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func (o *OutboxMetrics) ObserveBatch(took time.Duration) {
	if o == nil || o.batch == nil {
		return
	}
	o.batch.Observe(took.Seconds())
}
