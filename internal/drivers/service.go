package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes driver self-service operations.
type Service interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Driver, error)
	SetAvailability(ctx context.Context, userID uuid.UUID, available bool) (*models.Driver, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	clock  func() time.Time
}

// NewService builds the driver service.
func NewService(repo Repository, tx txRunner, emitter outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("drivers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter, logg: logg, clock: time.Now}, nil
}

func (s *service) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Driver, error) {
	driver, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return driver, nil
}

// SetAvailability moves a driver on or off shift. A driver that is already in the
// requested state is returned unchanged.
func (s *service) SetAvailability(ctx context.Context, userID uuid.UUID, available bool) (*models.Driver, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *models.Driver
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		driver, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return mapLookupError(err)
		}
		if !driver.IsActive {
			return pkgerrors.New(pkgerrors.CodeForbidden, "driver account is inactive")
		}
		if driver.IsAvailable == available {
			result = driver
			return nil
		}

		now := s.clock().UTC().Truncate(time.Microsecond)
		var ok bool
		if available {
			ok, err = repo.ReleaseAvailability(ctx, driver.ID, now)
		} else {
			ok, err = repo.ClaimAvailability(ctx, driver.ID, now)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update driver availability")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeAssignmentConflict, "driver availability changed concurrently")
		}

		driver.IsAvailable = available
		driver.UpdatedAt = now
		userRef := userID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDriverAvailabilityChanged,
			AggregateType: enums.AggregateDriver,
			AggregateID:   driver.ID,
			Actor:         &outbox.ActorRef{UserID: &userRef, Role: enums.ActorRoleDriver.String()},
			Data: payloads.DriverAvailabilityChangedEvent{
				DriverID:    driver.ID,
				IsAvailable: available,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record availability change")
		}
		result = driver
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"driver_id":    result.ID.String(),
		"is_available": result.IsAvailable,
	}), "driver availability set")
	return result, nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "driver not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load driver")
}
