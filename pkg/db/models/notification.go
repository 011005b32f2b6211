package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// Notification stores a user-facing message together with the channels it fans out on.
type Notification struct {
	ID             uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         uuid.UUID              `gorm:"type:uuid;not null" json:"user_id"`
	OrderID        *uuid.UUID             `gorm:"type:uuid" json:"order_id,omitempty"`
	Type           enums.NotificationType `gorm:"type:notification_type;not null" json:"type"`
	Title          string                 `gorm:"type:text;not null" json:"title"`
	Message        string                 `gorm:"type:text;not null" json:"message"`
	DeliveryMethod pq.StringArray         `gorm:"column:delivery_method;type:text[];not null" json:"delivery_method"`
	ReadAt         *time.Time             `gorm:"type:timestamptz" json:"read_at,omitempty"`
	CreatedAt      time.Time              `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}
