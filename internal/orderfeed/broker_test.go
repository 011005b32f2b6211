package orderfeed

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

func orderEvent(businessID *uuid.UUID, change enums.ChangeType) ChangeEvent {
	order := &models.Order{ID: uuid.New(), BusinessID: businessID, Status: enums.OrderStatusPending}
	ev := ChangeEvent{ID: uuid.New(), Type: change, Table: OrdersTable, CommitTime: time.Now()}
	if change == enums.ChangeDelete {
		ev.Old = order
	} else {
		ev.New = order
	}
	return ev
}

func receive(t *testing.T, sub Subscription) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return ChangeEvent{}
}

func TestBrokerDeliversInPublishOrder(t *testing.T) {
	broker := NewBroker()
	sub, err := broker.Subscribe(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	var sent []uuid.UUID
	for i := 0; i < 50; i++ {
		ev := orderEvent(nil, enums.ChangeInsert)
		sent = append(sent, ev.ID)
		broker.Publish(ev)
	}
	for i, id := range sent {
		if got := receive(t, sub); got.ID != id {
			t.Fatalf("event %d out of order: got %s want %s", i, got.ID, id)
		}
	}
}

func TestBrokerFiltersByBusiness(t *testing.T) {
	broker := NewBroker()
	mine := uuid.New()
	other := uuid.New()

	scoped, err := broker.Subscribe(context.Background(), Filter{BusinessID: &mine})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer scoped.Close()
	all, err := broker.Subscribe(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer all.Close()

	foreign := orderEvent(&other, enums.ChangeInsert)
	local := orderEvent(&mine, enums.ChangeDelete)
	if n := broker.Publish(foreign); n != 1 {
		t.Fatalf("foreign event reached %d subscriptions, want 1", n)
	}
	if n := broker.Publish(local); n != 2 {
		t.Fatalf("local event reached %d subscriptions, want 2", n)
	}

	if got := receive(t, scoped); got.ID != local.ID {
		t.Fatalf("scoped subscription received foreign event")
	}
	if got := receive(t, all); got.ID != foreign.ID {
		t.Fatalf("unscoped subscription should see the first event")
	}
	if got := receive(t, all); got.ID != local.ID {
		t.Fatalf("unscoped subscription should see the second event")
	}
}

func TestBrokerCloseStopsDelivery(t *testing.T) {
	broker := NewBroker()
	sub, err := broker.Subscribe(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = sub.Close()
	if n := broker.Publish(orderEvent(nil, enums.ChangeInsert)); n != 0 {
		t.Fatalf("closed subscription counted as a delivery")
	}

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatalf("closed subscription delivered an event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("events channel not closed")
	}
}

func TestBrokerContextCancelClosesSubscription(t *testing.T) {
	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := broker.Subscribe(ctx, Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed on cancel")
	}
}

func TestClosedBrokerRejectsSubscribers(t *testing.T) {
	broker := NewBroker()
	existing, err := broker.Subscribe(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	broker.Close()

	if _, err := broker.Subscribe(context.Background(), Filter{}); err != ErrBrokerClosed {
		t.Fatalf("expected ErrBrokerClosed, got %v", err)
	}
	if _, ok := <-existing.Events(); ok {
		t.Fatalf("existing subscription should be closed")
	}
}

func TestChangeEventAccessors(t *testing.T) {
	biz := uuid.New()
	ins := orderEvent(&biz, enums.ChangeInsert)
	if ins.OrderID() != ins.New.ID || *ins.BusinessID() != biz {
		t.Fatalf("insert accessors wrong")
	}
	del := orderEvent(&biz, enums.ChangeDelete)
	if del.OrderID() != del.Old.ID || *del.BusinessID() != biz {
		t.Fatalf("delete accessors wrong")
	}
	if (ChangeEvent{}).OrderID() != uuid.Nil || (ChangeEvent{}).BusinessID() != nil {
		t.Fatalf("empty event should have no ids")
	}
}
