package notifications

import (
	"context"
	"fmt"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var customerStatusMessages = map[enums.OrderStatus]string{
	enums.OrderStatusConfirmed:      "Your order #%d has been confirmed and is being prepared.",
	enums.OrderStatusPreparing:      "Your order #%d is now being prepared.",
	enums.OrderStatusReady:          "Your order #%d is ready for pickup/delivery.",
	enums.OrderStatusOutForDelivery: "Your order #%d is out for delivery.",
	enums.OrderStatusDelivered:      "Your order #%d has been delivered.",
	enums.OrderStatusCancelled:      "Your order #%d has been cancelled.",
}

// StatusMessage renders the customer-facing text for an order entering status.
// Statuses without a message (pending) return false.
func StatusMessage(status enums.OrderStatus, orderNumber int64) (string, bool) {
	format, ok := customerStatusMessages[status]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(format, orderNumber), true
}

// Notifier writes user notifications for order lifecycle side effects.
// Every method is best effort; callers log the returned error and move on.
type Notifier struct {
	repo   Repository
	logger *logger.Logger
}

// NewNotifier wires the notification fan-out.
func NewNotifier(repo Repository, logg *logger.Logger) (*Notifier, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Notifier{repo: repo, logger: logg}, nil
}

// OrderStatusChanged notifies the customer that their order entered a new status.
// It returns nil without writing when the status has no customer message.
func (n *Notifier) OrderStatusChanged(ctx context.Context, order *models.Order) (*models.Notification, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	message, ok := StatusMessage(order.Status, order.OrderNumber)
	if !ok {
		return nil, nil
	}
	notification := newNotification(order.CustomerID, order.ID, enums.NotificationTypeOrderStatus,
		"Order update", message, enums.DeliveryMethodInApp, enums.DeliveryMethodPush)
	return n.insertOne(ctx, order, notification, "notifications.status_changed_failed")
}

// DriverAssigned tells the customer a driver is on the way.
func (n *Notifier) DriverAssigned(ctx context.Context, order *models.Order) (*models.Notification, error) {
	if order == nil || order.DriverID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order with driver required")
	}
	message := fmt.Sprintf("A driver has been assigned to your order #%d.", order.OrderNumber)
	notification := newNotification(order.CustomerID, order.ID, enums.NotificationTypeDriverAssignment,
		"Driver assigned", message, enums.DeliveryMethodInApp, enums.DeliveryMethodPush)
	return n.insertOne(ctx, order, notification, "notifications.driver_assigned_failed")
}

// NewOrder fans a new-order notification out to every active staff member of the business.
func (n *Notifier) NewOrder(ctx context.Context, order *models.Order) ([]models.Notification, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.BusinessID == nil {
		return nil, nil
	}
	staff, err := n.repo.ActiveStaffUserIDs(ctx, *order.BusinessID)
	if err != nil {
		return nil, n.fail(ctx, order, "notifications.staff_lookup_failed", err)
	}
	message := fmt.Sprintf("New order #%d received.", order.OrderNumber)
	return n.fanOut(ctx, order, staff, enums.NotificationTypeNewOrder, "New order", message,
		enums.DeliveryMethodInApp, enums.DeliveryMethodPush)
}

// ManualAssignmentRequired alerts every active admin that an order needs a driver picked by hand.
// While an earlier alert for the order is still unread it writes nothing.
func (n *Notifier) ManualAssignmentRequired(ctx context.Context, order *models.Order) ([]models.Notification, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	pending, err := n.repo.HasUnread(ctx, order.ID, enums.NotificationTypeManualAssignmentRequired)
	if err != nil {
		return nil, n.fail(ctx, order, "notifications.manual_lookup_failed", err)
	}
	if pending {
		n.logger.Debug(n.logger.WithOrderID(ctx, order.ID.String()), "manual assignment alert still unread")
		return nil, nil
	}
	admins, err := n.repo.ActiveAdminUserIDs(ctx)
	if err != nil {
		return nil, n.fail(ctx, order, "notifications.admin_lookup_failed", err)
	}
	message := fmt.Sprintf("No drivers available for order #%d; manual assignment required.", order.OrderNumber)
	return n.fanOut(ctx, order, admins, enums.NotificationTypeManualAssignmentRequired,
		"Manual assignment required", message, enums.DeliveryMethodInApp, enums.DeliveryMethodEmail)
}

func (n *Notifier) fanOut(ctx context.Context, order *models.Order, recipients []uuid.UUID, kind enums.NotificationType, title, message string, methods ...enums.DeliveryMethod) ([]models.Notification, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	rows := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, newNotification(userID, order.ID, kind, title, message, methods...))
	}
	if err := n.repo.Insert(ctx, rows); err != nil {
		return nil, n.fail(ctx, order, "notifications.fan_out_failed", err)
	}
	return rows, nil
}

func (n *Notifier) insertOne(ctx context.Context, order *models.Order, row models.Notification, failure string) (*models.Notification, error) {
	rows := []models.Notification{row}
	if err := n.repo.Insert(ctx, rows); err != nil {
		return nil, n.fail(ctx, order, failure, err)
	}
	return &rows[0], nil
}

func (n *Notifier) fail(ctx context.Context, order *models.Order, msg string, err error) error {
	ctx = n.logger.WithOrderID(ctx, order.ID.String())
	n.logger.Error(ctx, msg, err)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write notification")
}

func newNotification(userID, orderID uuid.UUID, kind enums.NotificationType, title, message string, methods ...enums.DeliveryMethod) models.Notification {
	delivery := make(pq.StringArray, 0, len(methods))
	for _, method := range methods {
		delivery = append(delivery, string(method))
	}
	oid := orderID
	return models.Notification{
		ID:             uuid.New(),
		UserID:         userID,
		OrderID:        &oid,
		Type:           kind,
		Title:          title,
		Message:        message,
		DeliveryMethod: delivery,
	}
}
