// Package dispatch pairs ready orders with available drivers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/internal/drivers"
	"github.com/angelmondragon/dishdash-backend/internal/orderfeed"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ManualAssignmentMessage is the user-visible warning raised when no driver could be claimed.
const ManualAssignmentMessage = "no drivers available — manual assignment required"

// DefaultMaxAttempts bounds how many candidates AutoAssign tries before falling back.
const DefaultMaxAttempts = 3

// Outcome describes how an auto-assignment run ended.
type Outcome string

const (
	OutcomeAssigned        Outcome = "assigned"
	OutcomeAlreadyAssigned Outcome = "already_assigned"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeManualRequired  Outcome = "manual_required"
)

// Warning is surfaced to operators when an order needs attention.
type Warning struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber int64     `json:"order_number"`
	Message     string    `json:"message"`
}

// AssignmentResult reports the end state of AutoAssign.
type AssignmentResult struct {
	Outcome  Outcome
	OrderID  uuid.UUID
	DriverID *uuid.UUID
	Attempts int
	Warning  *Warning
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type manualNotifier interface {
	ManualAssignmentRequired(ctx context.Context, order *models.Order) ([]models.Notification, error)
}

// Options tunes the assigner.
type Options struct {
	MaxAttempts int
	Metrics     *metrics.DispatchMetrics
}

// Assigner claims drivers for ready orders. Every claim flips the driver and the
// order inside one transaction so a driver can never end up on two orders.
type Assigner struct {
	orders      orders.Repository
	drivers     drivers.Repository
	tx          txRunner
	changes     *orders.ChangeRecorder
	notifier    manualNotifier
	metrics     *metrics.DispatchMetrics
	logg        *logger.Logger
	maxAttempts int
	clock       func() time.Time
}

var errOrderTaken = errors.New("order no longer awaiting a driver")

// NewAssigner wires the assignment dependencies.
func NewAssigner(orderRepo orders.Repository, driverRepo drivers.Repository, tx txRunner, changes *orders.ChangeRecorder, notifier manualNotifier, logg *logger.Logger, opts Options) (*Assigner, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if driverRepo == nil {
		return nil, fmt.Errorf("drivers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if changes == nil {
		return nil, fmt.Errorf("change recorder required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Assigner{
		orders:      orderRepo,
		drivers:     driverRepo,
		tx:          tx,
		changes:     changes,
		notifier:    notifier,
		metrics:     opts.Metrics,
		logg:        logg,
		maxAttempts: opts.MaxAttempts,
		clock:       time.Now,
	}, nil
}

// AutoAssign tries the least recently updated available drivers in turn until one
// is claimed for the order. When none can be claimed the order is handed to admins.
func (a *Assigner) AutoAssign(ctx context.Context, orderID uuid.UUID) (AssignmentResult, error) {
	ctx = a.logg.WithOrderID(ctx, orderID.String())
	result := AssignmentResult{OrderID: orderID}

	order, err := loadOrder(ctx, a.orders, orderID)
	if err != nil {
		a.metrics.IncAttempt(metrics.OutcomeError)
		return result, err
	}
	if !order.AwaitingDriver() {
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	tried := make([]uuid.UUID, 0, a.maxAttempts)
	for result.Attempts < a.maxAttempts {
		candidates, err := a.drivers.FindCandidates(ctx, 1, tried)
		if err != nil {
			a.metrics.IncAttempt(metrics.OutcomeError)
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find driver candidates")
		}
		if len(candidates) == 0 {
			a.metrics.IncAttempt(metrics.OutcomeNoDriver)
			break
		}

		driverID := candidates[0].ID
		tried = append(tried, driverID)
		result.Attempts++

		_, err = a.claim(ctx, orderID, driverID, orders.SystemActor)
		switch {
		case err == nil:
			a.metrics.IncAttempt(metrics.OutcomeAssigned)
			result.Outcome = OutcomeAssigned
			result.DriverID = &driverID
			a.logg.Info(a.logg.WithField(ctx, "driver_id", driverID.String()), "driver auto-assigned")
			return result, nil
		case errors.Is(err, errOrderTaken):
			result.Outcome = OutcomeAlreadyAssigned
			return result, nil
		case pkgerrors.IsCode(err, pkgerrors.CodeAssignmentConflict):
			a.metrics.IncAttempt(metrics.OutcomeConflict)
			a.logg.Debug(a.logg.WithField(ctx, "driver_id", driverID.String()), "driver claimed elsewhere, retrying")
			continue
		default:
			a.metrics.IncAttempt(metrics.OutcomeError)
			return result, err
		}
	}

	return a.fallback(ctx, order, result), nil
}

// AssignDriver puts a specific driver on a ready order. Repeating the same assignment is a no-op.
func (a *Assigner) AssignDriver(ctx context.Context, orderID, driverID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	if actor.Role != enums.ActorRoleAdmin && actor.Role != enums.ActorRoleSystem {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may assign drivers")
	}
	if driverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id required")
	}

	order, err := a.claim(ctx, orderID, driverID, actor)
	if errors.Is(err, errOrderTaken) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order was assigned concurrently")
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// claim runs the two compare-and-set flips in one transaction and publishes the
// resulting change after commit. An order already carrying driverID returns unchanged.
func (a *Assigner) claim(ctx context.Context, orderID, driverID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	var (
		updated *models.Order
		event   orderfeed.ChangeEvent
		changed bool
	)
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := a.orders.WithTx(tx)
		driverRepo := a.drivers.WithTx(tx)

		current, err := loadOrder(ctx, orderRepo, orderID)
		if err != nil {
			return err
		}
		if current.DriverID != nil {
			if *current.DriverID == driverID {
				updated = current
				return nil
			}
			if actor.Role == enums.ActorRoleSystem {
				return errOrderTaken
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has a different driver").
				WithDetails(map[string]any{"driver_id": current.DriverID.String()})
		}
		if current.Status != enums.OrderStatusReady {
			if actor.Role == enums.ActorRoleSystem {
				return errOrderTaken
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is not ready for a driver").
				WithDetails(map[string]any{"status": current.Status})
		}

		driver, err := driverRepo.FindByID(ctx, driverID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "driver not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load driver")
		}
		if !driver.Assignable() {
			return pkgerrors.New(pkgerrors.CodeAssignmentConflict, "driver is no longer available")
		}

		now := orders.NextUpdatedAt(current.UpdatedAt, a.clock())
		won, err := driverRepo.ClaimAvailability(ctx, driverID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim driver")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeAssignmentConflict, "driver is no longer available")
		}

		ok, err := orderRepo.ClaimDriver(ctx, orderID, driverID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set order driver")
		}
		if !ok {
			return errOrderTaken
		}

		next := current.Clone()
		id := driverID
		next.DriverID = &id
		next.UpdatedAt = now
		event, err = a.changes.Record(ctx, tx, enums.ChangeUpdate, current, next, actor.Ref())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order change")
		}
		updated = next
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		a.changes.Publish(event)
	}
	return updated, nil
}

func (a *Assigner) fallback(ctx context.Context, order *models.Order, result AssignmentResult) AssignmentResult {
	a.metrics.IncAttempt(metrics.OutcomeFallback)
	a.metrics.IncFallback()

	if _, err := a.notifier.ManualAssignmentRequired(ctx, order); err != nil {
		a.logg.Error(ctx, "dispatch.manual_notification_failed", err)
	}
	warning := &Warning{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Message:     ManualAssignmentMessage,
	}
	a.logg.Warn(a.logg.WithFields(ctx, map[string]any{
		"order_number": order.OrderNumber,
		"attempts":     result.Attempts,
	}), ManualAssignmentMessage)

	result.Outcome = OutcomeManualRequired
	result.Warning = warning
	return result
}

func loadOrder(ctx context.Context, repo orders.Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
