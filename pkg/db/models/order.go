package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
)

// TotalTolerance is the rounding slack allowed between total_amount and its components.
var TotalTolerance = decimal.NewFromFloat(0.01)

// Order is a single customer order placed with a business.
type Order struct {
	ID                    uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber           int64                 `gorm:"column:order_number;not null;<-:create" json:"order_number"`
	CustomerID            uuid.UUID             `gorm:"column:customer_id;type:uuid;not null" json:"customer_id"`
	BusinessID            *uuid.UUID            `gorm:"column:business_id;type:uuid" json:"business_id,omitempty"`
	DriverID              *uuid.UUID            `gorm:"column:driver_id;type:uuid" json:"driver_id,omitempty"`
	Status                enums.OrderStatus     `gorm:"column:status;type:order_status;not null" json:"status"`
	PaymentStatus         enums.PaymentStatus   `gorm:"column:payment_status;type:payment_status;not null" json:"payment_status"`
	Subtotal              decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	DeliveryFee           decimal.Decimal       `gorm:"column:delivery_fee;type:numeric(12,2);not null" json:"delivery_fee"`
	ServiceFee            decimal.Decimal       `gorm:"column:service_fee;type:numeric(12,2);not null" json:"service_fee"`
	TaxAmount             decimal.Decimal       `gorm:"column:tax_amount;type:numeric(12,2);not null" json:"tax_amount"`
	TotalAmount           decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null" json:"total_amount"`
	DeliveryAddress       types.DeliveryAddress `gorm:"column:delivery_address;type:jsonb;serializer:json;not null" json:"delivery_address"`
	DeliveryInstructions  *string               `gorm:"column:delivery_instructions" json:"delivery_instructions,omitempty"`
	EstimatedDeliveryTime *time.Time            `gorm:"column:estimated_delivery_time" json:"estimated_delivery_time,omitempty"`
	ActualDeliveryTime    *time.Time            `gorm:"column:actual_delivery_time" json:"actual_delivery_time,omitempty"`
	Notes                 *string               `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt             time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// ComputedTotal sums the components total_amount must equal.
func (o Order) ComputedTotal() decimal.Decimal {
	return o.Subtotal.Add(o.DeliveryFee).Add(o.ServiceFee).Add(o.TaxAmount)
}

// TotalConsistent reports whether total_amount matches its components within TotalTolerance.
func (o Order) TotalConsistent() bool {
	return o.TotalAmount.Sub(o.ComputedTotal()).Abs().LessThanOrEqual(TotalTolerance)
}

// AwaitingDriver reports whether the order is eligible for auto-assignment.
func (o Order) AwaitingDriver() bool {
	return o.Status == enums.OrderStatusReady && o.DriverID == nil
}

// Clone returns a deep copy so snapshots can be handed across goroutines.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.BusinessID = cloneUUID(o.BusinessID)
	cp.DriverID = cloneUUID(o.DriverID)
	cp.DeliveryInstructions = cloneString(o.DeliveryInstructions)
	cp.Notes = cloneString(o.Notes)
	cp.EstimatedDeliveryTime = cloneTime(o.EstimatedDeliveryTime)
	cp.ActualDeliveryTime = cloneTime(o.ActualDeliveryTime)
	cp.DeliveryAddress.Line2 = cloneString(o.DeliveryAddress.Line2)
	return &cp
}

func cloneUUID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
