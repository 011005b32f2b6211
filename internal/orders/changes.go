package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/internal/orderfeed"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ChangeRecorder writes the order_changed outbox row for every orders mutation
// and, once the transaction commits, hands the same event to the local feed.
type ChangeRecorder struct {
	outbox outboxPublisher
	sink   orderfeed.Publisher
	clock  func() time.Time
}

// NewChangeRecorder builds a recorder. sink may be nil when changes only travel through Pub/Sub.
func NewChangeRecorder(emitter outboxPublisher, sink orderfeed.Publisher) (*ChangeRecorder, error) {
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &ChangeRecorder{
		outbox: emitter,
		sink:   sink,
		clock:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Record queues the change inside tx and returns the event to Publish after commit.
func (r *ChangeRecorder) Record(ctx context.Context, tx *gorm.DB, change enums.ChangeType, old, next *models.Order, actor *outbox.ActorRef) (orderfeed.ChangeEvent, error) {
	event := orderfeed.ChangeEvent{
		ID:         uuid.New(),
		Type:       change,
		Table:      orderfeed.OrdersTable,
		Old:        old.Clone(),
		New:        next.Clone(),
		CommitTime: r.clock(),
	}
	orderID := event.OrderID()
	if orderID == uuid.Nil {
		return orderfeed.ChangeEvent{}, fmt.Errorf("change has no order")
	}
	err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventID:       event.ID,
		EventType:     enums.EventOrderChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		OccurredAt:    event.CommitTime,
		Data: payloads.OrderChangedEvent{
			ChangeType: change,
			OrderID:    orderID,
			Old:        event.Old,
			New:        event.New,
		},
	})
	if err != nil {
		return orderfeed.ChangeEvent{}, err
	}
	return event, nil
}

// Publish forwards committed events to the local feed, if any.
func (r *ChangeRecorder) Publish(events ...orderfeed.ChangeEvent) {
	if r == nil || r.sink == nil {
		return
	}
	for _, event := range events {
		r.sink.Publish(event)
	}
}

// NextUpdatedAt returns a timestamp strictly after prev at the storage precision.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}
