package drivers

import (
	"context"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the driver registry. Every is_available flip is a compare-and-set.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Driver, error)
	// FindCandidates returns assignable drivers, least recently updated first.
	FindCandidates(ctx context.Context, limit int, exclude []uuid.UUID) ([]models.Driver, error)
	// ClaimAvailability flips an active, available driver to unavailable. It reports whether this call won.
	ClaimAvailability(ctx context.Context, id uuid.UUID, updatedAt time.Time) (bool, error)
	// ReleaseAvailability flips an active, unavailable driver back to available.
	ReleaseAvailability(ctx context.Context, id uuid.UUID, updatedAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a driver registry bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	var driver models.Driver
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&driver).Error; err != nil {
		return nil, err
	}
	return &driver, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Driver, error) {
	var driver models.Driver
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&driver).Error; err != nil {
		return nil, err
	}
	return &driver, nil
}

func (r *repository) FindCandidates(ctx context.Context, limit int, exclude []uuid.UUID) ([]models.Driver, error) {
	query := r.db.WithContext(ctx).Where("is_active = ? AND is_available = ?", true, true)
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Driver
	if err := query.Order("updated_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ClaimAvailability(ctx context.Context, id uuid.UUID, updatedAt time.Time) (bool, error) {
	return r.flip(ctx, id, true, false, updatedAt)
}

func (r *repository) ReleaseAvailability(ctx context.Context, id uuid.UUID, updatedAt time.Time) (bool, error) {
	return r.flip(ctx, id, false, true, updatedAt)
}

func (r *repository) flip(ctx context.Context, id uuid.UUID, from, to bool, updatedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Driver{}).
		Where("id = ? AND is_active = ? AND is_available = ?", id, true, from).
		Updates(map[string]any{
			"is_available": to,
			"updated_at":   updatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
