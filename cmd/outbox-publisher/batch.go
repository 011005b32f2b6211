package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

// verdict is what happened to one outbox row in a batch.
type verdict struct {
	result string
	reason enums.DeadLetterReason
	topic  string
	err    error
}

// drainBatch claims up to batchSize rows inside one transaction and settles
// each of them. Only bookkeeping failures abort the batch.
func (r *Relay) drainBatch(ctx context.Context) (int, error) {
	started := time.Now()
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		for _, row := range rows {
			if err := r.settle(ctx, tx, row, r.relay(ctx, row)); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	if handled > 0 && r.metrics != nil {
		r.metrics.ObserveBatch(time.Since(started))
	}
	return handled, err
}

func (r *Relay) relay(ctx context.Context, row models.OutboxEvent) verdict {
	resolved, err := r.resolver.Resolve(row)
	if err != nil {
		return verdict{result: metrics.RelayDeadLetter, reason: enums.DeadLetterNonRetryable, err: err}
	}
	topic := resolved.Descriptor.Topic

	pub := r.topics.For(topic)
	if pub == nil {
		err := fmt.Errorf("no publisher for topic %q", topic)
		return verdict{result: metrics.RelayDeadLetter, reason: enums.DeadLetterNonRetryable, topic: topic, err: err}
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := pub.Publish(publishCtx, toMessage(row, resolved)); err != nil {
		var permanent registry.NonRetryableError
		if errors.As(err, &permanent) {
			return verdict{result: metrics.RelayDeadLetter, reason: enums.DeadLetterNonRetryable, topic: topic, err: err}
		}
		if row.FinalAttempt(r.maxAttempts) {
			err = fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
			return verdict{result: metrics.RelayDeadLetter, reason: enums.DeadLetterMaxAttempts, topic: topic, err: err}
		}
		return verdict{result: metrics.RelayRetry, topic: topic, err: err}
	}
	return verdict{result: metrics.RelayPublished, topic: topic}
}

// toMessage keys messages by aggregate so changes to one order reach
// subscribers in commit order.
func toMessage(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: row.OrderingKey(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, v verdict) error {
	if r.metrics != nil {
		r.metrics.ObserveRelay(string(row.EventType), v.result)
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
		"topic":         v.topic,
		"result":        v.result,
	})

	switch v.result {
	case metrics.RelayPublished:
		if err := r.rows.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Debug(logCtx, "outbox event published")
	case metrics.RelayRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", v.err.Error()), "outbox publish failed, will retry")
		if err := r.rows.MarkFailedTx(tx, row.ID, v.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
	default:
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"error":        v.err.Error(),
			"error_reason": v.reason,
		}), "outbox event dead-lettered")
		if err := r.dlq.Bury(tx, row, v.reason, v.err); err != nil {
			return fmt.Errorf("bury %s: %w", row.ID, err)
		}
		if err := r.rows.MarkTerminalTx(tx, row.ID, v.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
	}
	return nil
}
