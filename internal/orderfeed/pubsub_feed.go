package orderfeed

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type resolver interface {
	Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Publisher accepts decoded change events, usually a Broker. Publish returns
// the number of subscribers the event reached.
type Publisher interface {
	Publish(event ChangeEvent) int
}

// PubSubFeed reads order_changed messages shipped by the outbox publisher and
// republishes them on a local Publisher, so every orchestrator in the process
// sees every message of the shared subscription.
type PubSubFeed struct {
	subscription receiver
	registry     resolver
	sink         Publisher
	logg         *logger.Logger
}

// NewPubSubFeed wires the subscriber handle to the local sink.
func NewPubSubFeed(subscription receiver, reg resolver, sink Publisher, logg *logger.Logger) (*PubSubFeed, error) {
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if reg == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if sink == nil {
		return nil, fmt.Errorf("change sink required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PubSubFeed{
		subscription: subscription,
		registry:     reg,
		sink:         sink,
		logg:         logg,
	}, nil
}

// Run receives until ctx is canceled. An order change nobody in the process
// was subscribed to is nacked so Pub/Sub redelivers it.
func (f *PubSubFeed) Run(ctx context.Context) error {
	return f.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if f.handle(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handle reports whether msg is done with: republished, or not worth retrying.
func (f *PubSubFeed) handle(ctx context.Context, msg *pubsub.Message) bool {
	eventType := msg.Attributes["event_type"]
	logCtx := f.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventOrderChanged) {
		f.logg.Debug(logCtx, "skipping non-order event")
		return true
	}

	event, err := f.decode(msg)
	if err != nil {
		// malformed rows are already dead-lettered on the publishing side
		f.logg.Error(logCtx, "failed to decode order change", err)
		return true
	}
	if f.sink.Publish(event) == 0 {
		f.logg.Warn(f.logg.WithOrderID(logCtx, event.OrderID().String()), "order change reached no subscriber, requesting redelivery")
		return false
	}
	return true
}

func (f *PubSubFeed) decode(msg *pubsub.Message) (ChangeEvent, error) {
	aggregateID, err := uuid.Parse(msg.Attributes["aggregate_id"])
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("invalid aggregate id: %w", err)
	}
	row := models.OutboxEvent{
		EventType:     enums.OutboxEventType(msg.Attributes["event_type"]),
		AggregateType: enums.OutboxAggregateType(msg.Attributes["aggregate_type"]),
		AggregateID:   aggregateID,
		Payload:       msg.Data,
	}
	resolved, err := f.registry.Resolve(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	payload, ok := resolved.Payload.(*payloads.OrderChangedEvent)
	if !ok {
		return ChangeEvent{}, fmt.Errorf("unexpected payload %T", resolved.Payload)
	}
	if !payload.ChangeType.IsValid() {
		return ChangeEvent{}, fmt.Errorf("invalid change type %q", payload.ChangeType)
	}
	eventID, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("invalid event id: %w", err)
	}
	occurredAt := resolved.Envelope.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return FromPayload(eventID, occurredAt, payload), nil
}
