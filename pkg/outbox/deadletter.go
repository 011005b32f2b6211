package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// DeadLetters stores outbox rows the relay gave up on.
type DeadLetters struct{}

func NewDeadLetters() *DeadLetters { return &DeadLetters{} }

// Bury copies row into outbox_dead_letters inside tx.
func (DeadLetters) Bury(tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	entry := DeadLetterFor(row, reason, cause, time.Now().UTC())
	return tx.Create(&entry).Error
}

// DeadLetterFor builds the outbox_dead_letters row for a failed event.
func DeadLetterFor(row models.OutboxEvent, reason enums.DeadLetterReason, cause error, failedAt time.Time) models.DeadLetter {
	entry := models.DeadLetter{
		ID:            uuid.New(),
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Envelope:      row.Payload,
		Reason:        reason,
		Attempts:      row.AttemptCount,
		FailedAt:      failedAt,
	}
	if cause != nil {
		msg := truncateError(cause)
		entry.Detail = &msg
	}
	return entry
}
