package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type rowInserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

// Writer appends domain events to the outbox in the caller's transaction.
type Writer struct {
	rows  rowInserter
	logg  *logger.Logger
	clock func() time.Time
}

func NewWriter(rows rowInserter, logg *logger.Logger) *Writer {
	return &Writer{rows: rows, logg: logg, clock: time.Now}
}

// Emit seals event and inserts it as an unpublished outbox row using tx.
// Nothing is written outside tx, so a rollback discards the event too.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	envelope, err := event.Seal(w.clock())
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	id, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	if err := w.rows.Insert(tx, models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}); err != nil {
		return err
	}
	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
