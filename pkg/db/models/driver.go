package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// Driver is a courier registered with the platform.
// Boolean columns carry no gorm defaults so false values are always written.
type Driver struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID         `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	IsActive    bool              `gorm:"column:is_active;not null" json:"is_active"`
	IsAvailable bool              `gorm:"column:is_available;not null" json:"is_available"`
	Rating      decimal.Decimal   `gorm:"column:rating;type:numeric(3,2);not null" json:"rating"`
	VehicleType enums.VehicleType `gorm:"column:vehicle_type;type:vehicle_type;not null" json:"vehicle_type"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Assignable reports whether the driver may be picked by auto-assignment.
func (d Driver) Assignable() bool {
	return d.IsActive && d.IsAvailable
}
