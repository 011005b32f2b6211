package orderfeed

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

type recordingSink struct {
	events []ChangeEvent
	closed bool
}

func (r *recordingSink) Publish(event ChangeEvent) int {
	if r.closed {
		return 0
	}
	r.events = append(r.events, event)
	return 1
}

type nopReceiver struct{}

func (nopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

func newTestFeed(t *testing.T) (*PubSubFeed, *recordingSink) {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-changes"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sink := &recordingSink{}
	feed, err := NewPubSubFeed(nopReceiver{}, reg, sink, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}
	return feed, sink
}

func orderChangedMessage(t *testing.T, eventID uuid.UUID, payload payloads.OrderChangedEvent) *pubsub.Message {
	t.Helper()
	envelope, err := outbox.DomainEvent{
		EventID:       eventID,
		EventType:     enums.EventOrderChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   payload.OrderID,
		Data:          payload,
	}.Seal(time.Now())
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &pubsub.Message{
		ID:   "msg-1",
		Data: data,
		Attributes: map[string]string{
			"event_id":       eventID.String(),
			"event_type":     string(enums.EventOrderChanged),
			"aggregate_type": string(enums.AggregateOrder),
			"aggregate_id":   payload.OrderID.String(),
		},
	}
}

func TestPubSubFeedRepublishesOrderChanges(t *testing.T) {
	feed, sink := newTestFeed(t)
	eventID := uuid.New()
	orderID := uuid.New()
	prev := &models.Order{ID: orderID, OrderNumber: 7, Status: enums.OrderStatusPreparing}
	next := prev.Clone()
	next.Status = enums.OrderStatusReady

	done := feed.handle(context.Background(), orderChangedMessage(t, eventID, payloads.OrderChangedEvent{
		ChangeType: enums.ChangeUpdate,
		OrderID:    orderID,
		Old:        prev,
		New:        next,
	}))
	if !done {
		t.Fatalf("delivered change should be acked")
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	got := sink.events[0]
	if got.ID != eventID || got.Type != enums.ChangeUpdate || got.Table != OrdersTable {
		t.Fatalf("unexpected event header %+v", got)
	}
	if got.Old.Status != enums.OrderStatusPreparing || got.New.Status != enums.OrderStatusReady {
		t.Fatalf("row images not preserved")
	}
	if got.CommitTime.IsZero() || time.Since(got.CommitTime) > time.Minute {
		t.Fatalf("commit time not carried: %v", got.CommitTime)
	}
}

func TestPubSubFeedSkipsOtherEventsAndGarbage(t *testing.T) {
	feed, sink := newTestFeed(t)

	messages := []*pubsub.Message{
		{
			Data:       []byte(`{}`),
			Attributes: map[string]string{"event_type": string(enums.EventDriverAvailabilityChanged)},
		},
		{
			Data: []byte(`not-json`),
			Attributes: map[string]string{
				"event_type":     string(enums.EventOrderChanged),
				"aggregate_type": string(enums.AggregateOrder),
				"aggregate_id":   uuid.NewString(),
			},
		},
		{
			Data: []byte(`{}`),
			Attributes: map[string]string{
				"event_type":   string(enums.EventOrderChanged),
				"aggregate_id": "nope",
			},
		},
	}
	for i, msg := range messages {
		if !feed.handle(context.Background(), msg) {
			t.Fatalf("message %d should be acked, not redelivered", i)
		}
	}

	if len(sink.events) != 0 {
		t.Fatalf("expected nothing republished, got %d", len(sink.events))
	}
}

func TestPubSubFeedRedeliversWhenNobodyListens(t *testing.T) {
	reg, err := registry.NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-changes"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	broker := NewBroker()
	defer broker.Close()
	feed, err := NewPubSubFeed(nopReceiver{}, reg, broker, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}
	orderID := uuid.New()
	msg := orderChangedMessage(t, uuid.New(), payloads.OrderChangedEvent{
		ChangeType: enums.ChangeInsert,
		OrderID:    orderID,
		New:        &models.Order{ID: orderID, Status: enums.OrderStatusPending},
	})

	if feed.handle(context.Background(), msg) {
		t.Fatalf("change with no subscriber should be redelivered")
	}

	sub, err := broker.Subscribe(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if !feed.handle(context.Background(), msg) {
		t.Fatalf("redelivered change should be acked once a subscriber exists")
	}
	if got := receive(t, sub); got.OrderID() != orderID {
		t.Fatalf("unexpected order %s", got.OrderID())
	}
}

func TestPubSubFeedRedeliversAfterSinkCloses(t *testing.T) {
	feed, sink := newTestFeed(t)
	sink.closed = true
	orderID := uuid.New()
	if feed.handle(context.Background(), orderChangedMessage(t, uuid.New(), payloads.OrderChangedEvent{
		ChangeType: enums.ChangeDelete,
		OrderID:    orderID,
		Old:        &models.Order{ID: orderID, Status: enums.OrderStatusCancelled},
	})) {
		t.Fatalf("change dropped during shutdown should be redelivered")
	}
}

func TestNewPubSubFeedValidatesDependencies(t *testing.T) {
	if _, err := NewPubSubFeed(nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for missing subscription")
	}
	if _, err := NewPubSubFeed(nopReceiver{}, nil, &recordingSink{}, nil); err == nil {
		t.Fatalf("expected error for missing registry")
	}
}
