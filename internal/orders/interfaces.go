package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextOrderNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
	ListForView(ctx context.Context, businessID *uuid.UUID) ([]models.Order, error)
	ListAwaitingDriver(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Order, error)
	// UpdateStatus only applies when the row still carries from. It reports whether a row changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updatedAt time.Time, deliveredAt *time.Time) (bool, error)
	// ClaimDriver sets driver_id on a ready order that has none. It reports whether a row changed.
	ClaimDriver(ctx context.Context, id, driverID uuid.UUID, updatedAt time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	InsertStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error
	ListStatusEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEvent, error)
}
