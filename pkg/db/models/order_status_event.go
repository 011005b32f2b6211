package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// OrderStatusEvent is the audit trail of status changes, including optional operator notes.
type OrderStatusEvent struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	FromStatus  enums.OrderStatus `gorm:"column:from_status;type:order_status;not null" json:"from_status"`
	ToStatus    enums.OrderStatus `gorm:"column:to_status;type:order_status;not null" json:"to_status"`
	ActorUserID *uuid.UUID        `gorm:"column:actor_user_id;type:uuid" json:"actor_user_id,omitempty"`
	ActorRole   enums.ActorRole   `gorm:"column:actor_role;type:text;not null" json:"actor_role"`
	Notes       *string           `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
