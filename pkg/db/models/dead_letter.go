package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// DeadLetter is an outbox row the relay stopped retrying, kept with its
// envelope so it can be replayed by hand.
type DeadLetter struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       uuid.UUID                 `gorm:"column:event_id;type:uuid;not null;uniqueIndex"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Envelope      json.RawMessage           `gorm:"column:envelope;type:jsonb;not null"`
	Reason        enums.DeadLetterReason    `gorm:"column:reason;type:dead_letter_reason_enum;not null"`
	Detail        *string                   `gorm:"column:detail"`
	Attempts      int                       `gorm:"column:attempts;not null"`
	FailedAt      time.Time                 `gorm:"column:failed_at;not null"`
}

func (DeadLetter) TableName() string { return "outbox_dead_letters" }
