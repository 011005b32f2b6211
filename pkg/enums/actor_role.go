package enums

// ActorRole identifies who is acting on an order.
type ActorRole string

const (
	ActorRoleCustomer   ActorRole = "customer"
	ActorRoleRestaurant ActorRole = "restaurant"
	ActorRoleDriver     ActorRole = "driver"
	ActorRoleAdmin      ActorRole = "admin"
	// ActorRoleSystem is used by background workers such as the dispatcher and cron jobs.
	ActorRoleSystem ActorRole = "system"
)

var actorRoles = set[ActorRole]{
	ActorRoleCustomer,
	ActorRoleRestaurant,
	ActorRoleDriver,
	ActorRoleAdmin,
	ActorRoleSystem,
}

// Customers have no entry: they never set order status.
var statusesByRole = map[ActorRole]set[OrderStatus]{
	ActorRoleRestaurant: {OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady, OrderStatusCancelled},
	ActorRoleDriver:     {OrderStatusOutForDelivery, OrderStatusDelivered},
	ActorRoleAdmin:      orderStatuses,
	ActorRoleSystem:     orderStatuses,
}

func (r ActorRole) String() string { return string(r) }

func (r ActorRole) IsValid() bool { return actorRoles.has(r) }

// CanSetStatus reports whether the role may move an order into target.
func (r ActorRole) CanSetStatus(target OrderStatus) bool {
	return statusesByRole[r].has(target)
}
