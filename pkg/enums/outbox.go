package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregateDriver OutboxAggregateType = "driver"
)

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	// EventOrderChanged carries a row-level insert, update or delete of an order.
	EventOrderChanged OutboxEventType = "order_changed"
	// EventDriverAvailabilityChanged records a driver going on or off shift.
	EventDriverAvailabilityChanged OutboxEventType = "driver_availability_changed"
)

// DeadLetterReason records why the relay gave up on a row.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterNonRetryable DeadLetterReason = "non_retryable"
)
