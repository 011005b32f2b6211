package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// BusinessStaff links a user to the business whose orders they handle.
type BusinessStaff struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessID uuid.UUID        `gorm:"column:business_id;type:uuid;not null"`
	UserID     uuid.UUID        `gorm:"column:user_id;type:uuid;not null"`
	Role       enums.MemberRole `gorm:"column:role;type:member_role;not null"`
	IsActive   bool             `gorm:"column:is_active;not null"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (BusinessStaff) TableName() string {
	return "business_staff"
}
