package orders

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/dishdash-backend/api/responses"
	"github.com/angelmondragon/dishdash-backend/api/validators"
	internalorders "github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
)

// DriverAssigner is the admin manual assignment entry point.
type DriverAssigner interface {
	AssignDriver(ctx context.Context, orderID, driverID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
}

type placeOrderRequest struct {
	CustomerID            *uuid.UUID            `json:"customer_id"`
	BusinessID            *uuid.UUID            `json:"business_id"`
	Subtotal              decimal.Decimal       `json:"subtotal"`
	DeliveryFee           decimal.Decimal       `json:"delivery_fee"`
	ServiceFee            decimal.Decimal       `json:"service_fee"`
	TaxAmount             decimal.Decimal       `json:"tax_amount"`
	TotalAmount           *decimal.Decimal      `json:"total_amount"`
	DeliveryAddress       types.DeliveryAddress `json:"delivery_address"`
	DeliveryInstructions  *string               `json:"delivery_instructions" validate:"omitempty,max=500"`
	EstimatedDeliveryTime *time.Time            `json:"estimated_delivery_time"`
	Notes                 *string               `json:"notes" validate:"omitempty,max=500"`
}

type updateStatusRequest struct {
	Status string  `json:"status" validate:"required,order_status"`
	Notes  *string `json:"notes" validate:"omitempty,max=500"`
}

type cancelRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=500"`
}

type assignDriverRequest struct {
	DriverID string `json:"driver_id" validate:"required,uuid"`
}

// List returns the caller's orders. Restaurants see their business, drivers and customers their own,
// admins everything with optional business and status filters.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := buildListFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListOrders(r.Context(), actor, filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(w http.ResponseWriter, r *http.Request, actor internalorders.Actor, orderID uuid.UUID) {
		order, err := svc.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

// Place creates a pending order. Customers order for themselves; admins may name the customer.
func Place(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID := actor.UserID
		if payload.CustomerID != nil {
			customerID = *payload.CustomerID
		}

		order, err := svc.PlaceOrder(r.Context(), internalorders.PlaceOrderInput{
			CustomerID:            customerID,
			BusinessID:            payload.BusinessID,
			Subtotal:              payload.Subtotal,
			DeliveryFee:           payload.DeliveryFee,
			ServiceFee:            payload.ServiceFee,
			TaxAmount:             payload.TaxAmount,
			TotalAmount:           payload.TotalAmount,
			DeliveryAddress:       payload.DeliveryAddress,
			DeliveryInstructions:  validators.TrimOptional(payload.DeliveryInstructions),
			EstimatedDeliveryTime: payload.EstimatedDeliveryTime,
			Notes:                 validators.TrimOptional(payload.Notes),
			Actor:                 actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(w http.ResponseWriter, r *http.Request, actor internalorders.Actor, orderID uuid.UUID) {
		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]any{"status": payload.Status}))
			return
		}

		order, err := svc.UpdateOrderStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID: orderID,
			Status:  status,
			Notes:   validators.TrimOptional(payload.Notes),
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

// Advance moves the order one step along the happy path.
func Advance(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(w http.ResponseWriter, r *http.Request, actor internalorders.Actor, orderID uuid.UUID) {
		order, err := svc.AdvanceOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(w http.ResponseWriter, r *http.Request, actor internalorders.Actor, orderID uuid.UUID) {
		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.CancelOrder(r.Context(), actor, orderID, validators.TrimOptional(payload.Notes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

// Assign manually puts a driver on a ready order, typically after the automatic fallback warning.
func Assign(assigner DriverAssigner, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(w http.ResponseWriter, r *http.Request, actor internalorders.Actor, orderID uuid.UUID) {
		var payload assignDriverRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		driverID, err := uuid.Parse(payload.DriverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid driver id"))
			return
		}

		order, err := assigner.AssignDriver(r.Context(), orderID, driverID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

func Delete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(w http.ResponseWriter, r *http.Request, actor internalorders.Actor, orderID uuid.UUID) {
		if err := svc.DeleteOrder(r.Context(), actor, orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	})
}

func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(w http.ResponseWriter, r *http.Request, actor internalorders.Actor, orderID uuid.UUID) {
		rows, err := svc.StatusHistory(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"events": rows})
	})
}

type orderHandler func(w http.ResponseWriter, r *http.Request, actor internalorders.Actor, orderID uuid.UUID)

func withOrder(logg *logger.Logger, next orderHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			r = r.WithContext(logg.WithOrderID(r.Context(), orderID.String()))
		}
		next(w, r, actor, orderID)
	}
}

func buildListFilter(r *http.Request) (internalorders.ListFilter, error) {
	var filter internalorders.ListFilter
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = &status
	}
	businessID, err := validators.ParseQueryUUID(r, "business_id")
	if err != nil {
		return filter, err
	}
	filter.BusinessID = businessID
	return filter, nil
}
