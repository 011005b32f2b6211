// Package orderfeed carries row-level order changes from writers to the dispatch orchestrators.
package orderfeed

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
)

// OrdersTable names the table every event in this package refers to.
const OrdersTable = "orders"

// ChangeEvent is one committed insert, update or delete on the orders table.
// Old is nil for inserts, New is nil for deletes.
type ChangeEvent struct {
	ID         uuid.UUID
	Type       enums.ChangeType
	Table      string
	Old        *models.Order
	New        *models.Order
	CommitTime time.Time
}

// OrderID returns the id of the order the event refers to.
func (e ChangeEvent) OrderID() uuid.UUID {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return uuid.Nil
}

// BusinessID returns the business of the most recent row image.
func (e ChangeEvent) BusinessID() *uuid.UUID {
	if e.New != nil {
		return e.New.BusinessID
	}
	if e.Old != nil {
		return e.Old.BusinessID
	}
	return nil
}

// Filter narrows a subscription. A nil BusinessID receives every order.
type Filter struct {
	BusinessID *uuid.UUID
}

// Matches reports whether the event belongs to the filter's scope.
func (f Filter) Matches(event ChangeEvent) bool {
	if f.BusinessID == nil {
		return true
	}
	for _, row := range []*models.Order{event.New, event.Old} {
		if row != nil && row.BusinessID != nil && *row.BusinessID == *f.BusinessID {
			return true
		}
	}
	return false
}

// Subscription is a live stream of change events. Events is closed after Close.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Feed hands out subscriptions to order changes.
type Feed interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

// FromPayload converts a decoded outbox payload into a ChangeEvent.
func FromPayload(eventID uuid.UUID, occurredAt time.Time, payload *payloads.OrderChangedEvent) ChangeEvent {
	return ChangeEvent{
		ID:         eventID,
		Type:       payload.ChangeType,
		Table:      OrdersTable,
		Old:        payload.Old,
		New:        payload.New,
		CommitTime: occurredAt,
	}
}
