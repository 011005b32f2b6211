package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// OutboxEvent is a domain change written in the same transaction as the rows
// it describes. The relay publishes Payload, a sealed outbox.Envelope, to
// Pub/Sub keyed by AggregateID and stamps PublishedAt. Failed publishes bump
// AttemptCount and keep the last error.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`

	AttemptCount int     `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// OrderingKey keeps every change to one aggregate on a single ordered stream.
func (e OutboxEvent) OrderingKey() string {
	return e.AggregateID.String()
}

// FinalAttempt reports whether the publish in flight is the last one allowed.
func (e OutboxEvent) FinalAttempt(maxAttempts int) bool {
	return e.AttemptCount+1 >= maxAttempts
}
