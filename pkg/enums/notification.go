package enums

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOrderStatus              NotificationType = "order_status"
	NotificationTypeDriverAssignment         NotificationType = "driver_assignment"
	NotificationTypeNewOrder                 NotificationType = "new_order"
	NotificationTypeManualAssignmentRequired NotificationType = "manual_assignment_required"
)

// DeliveryMethod is a channel a notification is fanned out on.
type DeliveryMethod string

const (
	DeliveryMethodInApp DeliveryMethod = "in_app"
	DeliveryMethodPush  DeliveryMethod = "push"
	DeliveryMethodEmail DeliveryMethod = "email"
	DeliveryMethodSMS   DeliveryMethod = "sms"
)
