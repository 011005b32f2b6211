package orders

import (
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListFilter narrows order listings. Nil fields are ignored.
type ListFilter struct {
	BusinessID *uuid.UUID
	CustomerID *uuid.UUID
	DriverID   *uuid.UUID
	Status     *enums.OrderStatus
}

func (f ListFilter) apply(query *gorm.DB) *gorm.DB {
	if f.BusinessID != nil {
		query = query.Where("business_id = ?", *f.BusinessID)
	}
	if f.CustomerID != nil {
		query = query.Where("customer_id = ?", *f.CustomerID)
	}
	if f.DriverID != nil {
		query = query.Where("driver_id = ?", *f.DriverID)
	}
	if f.Status != nil {
		query = query.Where("status = ?", *f.Status)
	}
	return query
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Actor identifies who is acting on an order.
type Actor struct {
	UserID     uuid.UUID
	Role       enums.ActorRole
	BusinessID *uuid.UUID
	DriverID   *uuid.UUID
}

// SystemActor is used by background processes.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

// CanAccess reports whether the actor may see or act on order.
func (a Actor) CanAccess(order *models.Order) bool {
	if order == nil {
		return false
	}
	switch a.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true
	case enums.ActorRoleRestaurant:
		return a.BusinessID != nil && order.BusinessID != nil && *a.BusinessID == *order.BusinessID
	case enums.ActorRoleDriver:
		return a.DriverID != nil && order.DriverID != nil && *a.DriverID == *order.DriverID
	case enums.ActorRoleCustomer:
		return a.UserID != uuid.Nil && order.CustomerID == a.UserID
	default:
		return false
	}
}

// Ref converts the actor into the outbox envelope form.
func (a Actor) Ref() *outbox.ActorRef {
	ref := &outbox.ActorRef{Role: a.Role.String(), BusinessID: a.BusinessID}
	if a.UserID != uuid.Nil {
		id := a.UserID
		ref.UserID = &id
	}
	return ref
}

func (a Actor) userIDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// UpdateStatusInput carries a requested status change.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Notes   *string
	Actor   Actor
}

// PlaceOrderInput captures a new order at checkout.
type PlaceOrderInput struct {
	CustomerID            uuid.UUID
	BusinessID            *uuid.UUID
	Subtotal              decimal.Decimal
	DeliveryFee           decimal.Decimal
	ServiceFee            decimal.Decimal
	TaxAmount             decimal.Decimal
	TotalAmount           *decimal.Decimal
	DeliveryAddress       types.DeliveryAddress
	DeliveryInstructions  *string
	EstimatedDeliveryTime *time.Time
	Notes                 *string
	Actor                 Actor
}
