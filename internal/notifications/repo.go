package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
)

// Repository persists notifications and resolves who receives them.
type Repository interface {
	Insert(ctx context.Context, rows []models.Notification) error
	List(ctx context.Context, q listQuery) ([]models.Notification, string, error)
	// MarkRead reports whether the notification exists for userID, read or not.
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	ActiveStaffUserIDs(ctx context.Context, businessID uuid.UUID) ([]uuid.UUID, error)
	ActiveAdminUserIDs(ctx context.Context) ([]uuid.UUID, error)
	// HasUnread reports whether anyone still has an unread notification of kind about orderID.
	HasUnread(ctx context.Context, orderID uuid.UUID, kind enums.NotificationType) (bool, error)
}

type listQuery struct {
	UserID     uuid.UUID
	Limit      int
	After      *pagination.Cursor
	UnreadOnly bool
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Insert stamps ids and UTC creation times so cursors compare the same on every driver.
func (r *repository) Insert(ctx context.Context, rows []models.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) List(ctx context.Context, q listQuery) ([]models.Notification, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", q.UserID)
	if q.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var rows []models.Notification
	if err := pagination.Keyset(query, q.After, q.Limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Page(rows, q.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r *repository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
	owned := r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ? AND user_id = ?", notificationID, userID)

	res := owned.Session(&gorm.Session{}).Where("read_at IS NULL").UpdateColumn("read_at", now)
	if res.Error != nil || res.RowsAffected > 0 {
		return res.RowsAffected > 0, res.Error
	}
	var count int64
	if err := owned.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore removes up to limit notifications read before cutoff, oldest first.
func (r *repository) DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	oldest := r.db.Model(&models.Notification{}).
		Select("id").
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Order("read_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).Where("id IN (?)", oldest).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

func (r *repository) ActiveStaffUserIDs(ctx context.Context, businessID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.BusinessStaff{}).
		Joins("JOIN users ON users.id = business_staff.user_id").
		Where("business_staff.business_id = ? AND business_staff.is_active AND users.is_active", businessID).
		Order("business_staff.user_id").
		Pluck("business_staff.user_id", &ids).Error
	return ids, err
}

func (r *repository) ActiveAdminUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ? AND is_active", enums.ActorRoleAdmin).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) HasUnread(ctx context.Context, orderID uuid.UUID, kind enums.NotificationType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("order_id = ? AND type = ? AND read_at IS NULL", orderID, kind).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}
