package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
)

// MustCreateUser inserts an active user with the given role.
func MustCreateUser(t testing.TB, conn *gorm.DB, role enums.ActorRole) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.New(),
		Email:    fmt.Sprintf("dd_test_%s@example.com", uuid.NewString()),
		FullName: "Test " + role.String(),
		Role:     role,
		IsActive: true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreateStaff links a fresh restaurant user to businessID.
func MustCreateStaff(t testing.TB, conn *gorm.DB, businessID uuid.UUID, active bool) *models.User {
	t.Helper()
	user := MustCreateUser(t, conn, enums.ActorRoleRestaurant)
	staff := &models.BusinessStaff{
		ID:         uuid.New(),
		BusinessID: businessID,
		UserID:     user.ID,
		Role:       enums.MemberRoleStaff,
		IsActive:   active,
	}
	if err := conn.Create(staff).Error; err != nil {
		t.Fatalf("create staff: %v", err)
	}
	return user
}

// MustCreateDriver inserts a driver whose updated_at is set to updatedAt.
func MustCreateDriver(t testing.TB, conn *gorm.DB, active, available bool, updatedAt time.Time) *models.Driver {
	t.Helper()
	user := MustCreateUser(t, conn, enums.ActorRoleDriver)
	driver := &models.Driver{
		ID:          uuid.New(),
		UserID:      user.ID,
		IsActive:    active,
		IsAvailable: available,
		Rating:      decimal.RequireFromString("4.80"),
		VehicleType: enums.VehicleTypeScooter,
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
	}
	if err := conn.Create(driver).Error; err != nil {
		t.Fatalf("create driver: %v", err)
	}
	return driver
}

// OrderOption customizes MustCreateOrder.
type OrderOption func(*models.Order)

func WithStatus(status enums.OrderStatus) OrderOption {
	return func(o *models.Order) { o.Status = status }
}

func WithBusiness(id uuid.UUID) OrderOption {
	return func(o *models.Order) { o.BusinessID = &id }
}

func WithDriver(id uuid.UUID) OrderOption {
	return func(o *models.Order) { o.DriverID = &id }
}

func WithCreatedAt(at time.Time) OrderOption {
	return func(o *models.Order) {
		o.CreatedAt = at
		o.UpdatedAt = at
	}
}

// MustCreateOrder inserts a pending order for customerID. Order numbers follow insertion order.
func MustCreateOrder(t testing.TB, conn *gorm.DB, customerID uuid.UUID, opts ...OrderOption) *models.Order {
	t.Helper()
	var next int64
	if err := conn.Raw(`SELECT COALESCE(MAX(order_number), 0) + 1 FROM orders`).Scan(&next).Error; err != nil {
		t.Fatalf("next order number: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   next,
		CustomerID:    customerID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPaid,
		Subtotal:      decimal.RequireFromString("20.00"),
		DeliveryFee:   decimal.RequireFromString("3.50"),
		ServiceFee:    decimal.RequireFromString("1.25"),
		TaxAmount:     decimal.RequireFromString("1.60"),
		TotalAmount:   decimal.RequireFromString("26.35"),
		DeliveryAddress: types.DeliveryAddress{
			Line1:      "12 Harbour St",
			City:       "Lisbon",
			PostalCode: "1100-001",
			Country:    "PT",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(order)
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
