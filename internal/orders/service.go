package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/internal/orderfeed"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the order lifecycle operations.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, actor Actor, filter ListFilter, params pagination.Params) (*OrderList, error)
	ListForView(ctx context.Context, businessID *uuid.UUID) ([]models.Order, error)
	ListAwaitingDriver(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	AdvanceOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID, notes *string) (*models.Order, error)
	DeleteOrder(ctx context.Context, actor Actor, orderID uuid.UUID) error
	StatusHistory(ctx context.Context, actor Actor, orderID uuid.UUID) ([]models.OrderStatusEvent, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	changes *ChangeRecorder
	logg    *logger.Logger
	clock   func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, changes *ChangeRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if changes == nil {
		return nil, fmt.Errorf("change recorder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		changes: changes,
		logg:    logg,
		clock:   time.Now,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	switch input.Actor.Role {
	case enums.ActorRoleCustomer:
		if input.Actor.UserID != input.CustomerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "customers may only order for themselves")
		}
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role may not place orders")
	}
	if err := input.DeliveryAddress.Validate(); err != nil {
		var problems []string
		for _, e := range multierr.Errors(err) {
			problems = append(problems, e.Error())
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery address").
			WithDetails(map[string]any{"delivery_address": problems})
	}
	for name, amount := range map[string]decimal.Decimal{
		"subtotal":     input.Subtotal,
		"delivery_fee": input.DeliveryFee,
		"service_fee":  input.ServiceFee,
		"tax_amount":   input.TaxAmount,
	} {
		if amount.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, name+" must not be negative")
		}
	}

	now := s.clock().UTC().Truncate(time.Microsecond)
	order := &models.Order{
		ID:                    uuid.New(),
		CustomerID:            input.CustomerID,
		BusinessID:            input.BusinessID,
		Status:                enums.OrderStatusPending,
		PaymentStatus:         enums.PaymentStatusPending,
		Subtotal:              input.Subtotal.Round(2),
		DeliveryFee:           input.DeliveryFee.Round(2),
		ServiceFee:            input.ServiceFee.Round(2),
		TaxAmount:             input.TaxAmount.Round(2),
		DeliveryAddress:       input.DeliveryAddress,
		DeliveryInstructions:  input.DeliveryInstructions,
		EstimatedDeliveryTime: input.EstimatedDeliveryTime,
		Notes:                 input.Notes,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	order.TotalAmount = order.ComputedTotal()
	if input.TotalAmount != nil {
		order.TotalAmount = input.TotalAmount.Round(2)
		if !order.TotalConsistent() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_amount does not match its components").
				WithDetails(map[string]any{"expected": order.ComputedTotal().StringFixed(2)})
		}
	}

	var event orderfeed.ChangeEvent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		number, err := repo.NextOrderNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}
		order.OrderNumber = number
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		event, err = s.changes.Record(ctx, tx, enums.ChangeInsert, nil, order, input.Actor.Ref())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order change")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changes.Publish(event)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
	}), "order placed")
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, actor Actor, filter ListFilter, params pagination.Params) (*OrderList, error) {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	case enums.ActorRoleRestaurant:
		if actor.BusinessID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "business context missing")
		}
		filter.BusinessID = actor.BusinessID
	case enums.ActorRoleDriver:
		if actor.DriverID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "driver context missing")
		}
		filter.DriverID = actor.DriverID
	case enums.ActorRoleCustomer:
		customer := actor.UserID
		filter.CustomerID = &customer
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role may not list orders")
	}

	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) ListForView(ctx context.Context, businessID *uuid.UUID) ([]models.Order, error) {
	rows, err := s.repo.ListForView(ctx, businessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
	}
	return rows, nil
}

func (s *service) ListAwaitingDriver(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListAwaitingDriver(ctx, updatedBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders awaiting driver")
	}
	return rows, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if !input.Actor.Role.CanSetStatus(input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role may not set this status").
			WithDetails(map[string]any{"role": input.Actor.Role, "status": input.Status})
	}

	var (
		updated *models.Order
		event   orderfeed.ChangeEvent
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !input.Actor.CanAccess(current) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
		}
		if current.Status == input.Status {
			updated = current
			return nil
		}
		if !enums.CanTransition(current.Status, input.Status) {
			return invalidTransition(current.Status, input.Status)
		}

		now := NextUpdatedAt(current.UpdatedAt, s.clock())
		next := current.Clone()
		next.Status = input.Status
		next.UpdatedAt = now
		if input.Status == enums.OrderStatusDelivered {
			delivered := now
			next.ActualDeliveryTime = &delivered
		}

		ok, err := repo.UpdateStatus(ctx, current.ID, current.Status, next.Status, now, next.ActualDeliveryTime)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order status changed concurrently")
		}

		if err := repo.InsertStatusEvent(ctx, &models.OrderStatusEvent{
			OrderID:     current.ID,
			FromStatus:  current.Status,
			ToStatus:    next.Status,
			ActorUserID: input.Actor.userIDPtr(),
			ActorRole:   input.Actor.Role,
			Notes:       input.Notes,
			CreatedAt:   now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status history")
		}

		event, err = s.changes.Record(ctx, tx, enums.ChangeUpdate, current, next, input.Actor.Ref())
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
		s.changes.Publish(event)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": updated.ID.String(),
			"status":   updated.Status,
		}), "order status updated")
	}
	return updated, nil
}

func (s *service) AdvanceOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	current, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	next, ok := enums.NextStatus(current.Status)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no next status").
			WithDetails(map[string]any{"from": current.Status})
	}
	return s.UpdateOrderStatus(ctx, UpdateStatusInput{
		OrderID: orderID,
		Status:  next,
		Actor:   actor,
	})
}

func (s *service) CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID, notes *string) (*models.Order, error) {
	return s.UpdateOrderStatus(ctx, UpdateStatusInput{
		OrderID: orderID,
		Status:  enums.OrderStatusCancelled,
		Notes:   notes,
		Actor:   actor,
	})
}

func (s *service) DeleteOrder(ctx context.Context, actor Actor, orderID uuid.UUID) error {
	if actor.Role != enums.ActorRoleAdmin && actor.Role != enums.ActorRoleSystem {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins may delete orders")
	}

	var event orderfeed.ChangeEvent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		ok, err := repo.Delete(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		event, err = s.changes.Record(ctx, tx, enums.ChangeDelete, current, nil, actor.Ref())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order change")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.changes.Publish(event)
	return nil
}

func (s *service) StatusHistory(ctx context.Context, actor Actor, orderID uuid.UUID) ([]models.OrderStatusEvent, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListStatusEvents(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status history")
	}
	return rows, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
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

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
