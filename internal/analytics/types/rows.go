package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OrderEventRow mirrors the order_events BigQuery schema. One row per committed order change.
type OrderEventRow struct {
	EventID          string             `bigquery:"event_id"`
	ChangeType       string             `bigquery:"change_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	OrderID          string             `bigquery:"order_id"`
	OrderNumber      int64              `bigquery:"order_number"`
	BusinessID       *string            `bigquery:"business_id"`
	CustomerID       string             `bigquery:"customer_id"`
	DriverID         *string            `bigquery:"driver_id"`
	PreviousStatus   *string            `bigquery:"previous_status"`
	Status           *string            `bigquery:"status"`
	TotalAmountCents *int64             `bigquery:"total_amount_cents"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}
