package enums

import "slices"

// OrderStatus maps to the order_status enum in Postgres.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// forwardChain is the happy path in order; cancelled sits outside it.
var forwardChain = set[OrderStatus]{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

var orderStatuses = append(slices.Clone(forwardChain), OrderStatusCancelled)

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// AllowsDriver reports whether an order in this status may carry a driver.
func (s OrderStatus) AllowsDriver() bool {
	switch s {
	case OrderStatusReady, OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// NextStatus returns the forward successor of current. Terminal and unknown
// statuses have none.
func NextStatus(current OrderStatus) (OrderStatus, bool) {
	i := slices.Index(forwardChain, current)
	if i < 0 || i+1 == len(forwardChain) {
		return "", false
	}
	return forwardChain[i+1], true
}

// CanTransition reports whether from -> to is an edge of the state machine:
// one step forward, or cancellation of any non-terminal order.
func CanTransition(from, to OrderStatus) bool {
	if !from.IsValid() || from.IsTerminal() {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	next, ok := NextStatus(from)
	return ok && next == to
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse("order status", value)
}
