package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// CurrentVersion is stamped on envelopes sealed without an explicit version.
const CurrentVersion = 1

// ActorRef identifies who caused an event.
type ActorRef struct {
	UserID     *uuid.UUID `json:"userId,omitempty"`
	BusinessID *uuid.UUID `json:"businessId,omitempty"`
	Role       string     `json:"role,omitempty"`
}

// Envelope is the JSON document kept in outbox_events.payload and sent as the
// Pub/Sub message body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DomainEvent is what services hand to Writer.Emit.
type DomainEvent struct {
	// EventID is generated when empty. Set it when the same event is also
	// fanned out in-process so both copies share an id.
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Seal fills the defaults of e and encodes its data into an Envelope.
func (e DomainEvent) Seal(now time.Time) (Envelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now.UTC()
	}
	id := e.EventID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return Envelope{
		Version:    max(e.Version, CurrentVersion),
		EventID:    id.String(),
		OccurredAt: occurred,
		Actor:      e.Actor,
		Data:       data,
	}, nil
}
