// Package orchestrator keeps a live view of orders and reacts to their changes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/dishdash-backend/internal/dispatch"
	"github.com/angelmondragon/dishdash-backend/internal/orderfeed"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultDedupeWindow  = 1024
	defaultWarningBuffer = 64

	// NotificationConsumer is the idempotency consumer name shared by every orchestrator,
	// so an event notifies once no matter how many scopes observe it.
	NotificationConsumer = "order-notifications"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("orchestrator already started")
	// ErrClosed is returned when Start races with or follows Close.
	ErrClosed = errors.New("orchestrator closed")
)

type viewLoader interface {
	ListForView(ctx context.Context, businessID *uuid.UUID) ([]models.Order, error)
}

type autoAssigner interface {
	AutoAssign(ctx context.Context, orderID uuid.UUID) (dispatch.AssignmentResult, error)
}

type lifecycleNotifier interface {
	OrderStatusChanged(ctx context.Context, order *models.Order) (*models.Notification, error)
	DriverAssigned(ctx context.Context, order *models.Order) (*models.Notification, error)
	NewOrder(ctx context.Context, order *models.Order) ([]models.Notification, error)
}

// EventClaimer hands each event to one consumer process.
type EventClaimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// EventSink receives every distinct change an active orchestrator observes.
type EventSink interface {
	Record(ctx context.Context, event orderfeed.ChangeEvent) error
}

// Config scopes an orchestrator.
type Config struct {
	// BusinessID limits the view to one business. Nil watches every order.
	BusinessID *uuid.UUID
	Role       enums.ActorRole
	// Passive orchestrators only maintain the view and fire no side effects.
	Passive      bool
	DedupeWindow int
}

// Name identifies the scope in logs.
func (c Config) Name() string {
	scope := "all"
	if c.BusinessID != nil {
		scope = c.BusinessID.String()
	}
	return fmt.Sprintf("%s:%s", c.Role, scope)
}

// Deps carries the collaborators of an orchestrator. Claimer, Sink and Metrics are optional.
type Deps struct {
	Feed     orderfeed.Feed
	Loader   viewLoader
	Assigner autoAssigner
	Notifier lifecycleNotifier
	Claimer  EventClaimer
	Sink     EventSink
	Metrics  *metrics.DispatchMetrics
	Logger   *logger.Logger
}

// Orchestrator mirrors the orders in its scope and drives notifications and
// driver auto-assignment from the change feed.
type Orchestrator struct {
	cfg  Config
	deps Deps

	mu        sync.RWMutex
	orders    []models.Order
	assigning map[uuid.UUID]struct{}

	seen     *seenWindow
	warnings chan dispatch.Warning

	sub       orderfeed.Subscription
	cancel    context.CancelFunc
	baseCtx   context.Context
	done      chan struct{}
	inflight  sync.WaitGroup
	started   bool
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// New validates the configuration and builds an idle orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Feed == nil {
		return nil, errors.New("feed required")
	}
	if deps.Loader == nil {
		return nil, errors.New("order loader required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger required")
	}
	if !cfg.Role.IsValid() {
		return nil, fmt.Errorf("invalid orchestrator role %q", cfg.Role)
	}
	if cfg.Role == enums.ActorRoleRestaurant && cfg.BusinessID == nil {
		return nil, errors.New("restaurant orchestrator requires a business id")
	}
	if !cfg.Passive && (deps.Assigner == nil || deps.Notifier == nil) {
		return nil, errors.New("active orchestrator requires an assigner and a notifier")
	}
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		assigning: make(map[uuid.UUID]struct{}),
		seen:      newSeenWindow(cfg.DedupeWindow),
		warnings:  make(chan dispatch.Warning, defaultWarningBuffer),
		done:      make(chan struct{}),
	}, nil
}

// Start subscribes to the feed, seeds the view and processes events until ctx ends or Close is called.
// Subscribing first guarantees no change committed after the initial fetch is missed.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	ctx = o.deps.Logger.WithField(runCtx, "orchestrator", o.cfg.Name())

	sub, err := o.deps.Feed.Subscribe(runCtx, orderfeed.Filter{BusinessID: o.cfg.BusinessID})
	if err != nil {
		cancel()
		close(o.done)
		return fmt.Errorf("subscribe to order feed: %w", err)
	}
	initial, err := o.deps.Loader.ListForView(runCtx, o.cfg.BusinessID)
	if err != nil {
		cancel()
		close(o.done)
		return multierr.Append(fmt.Errorf("load initial orders: %w", err), sub.Close())
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		close(o.done)
		return multierr.Append(ErrClosed, sub.Close())
	}
	o.orders = initial
	o.sub = sub
	o.cancel = cancel
	o.baseCtx = ctx
	o.mu.Unlock()
	o.deps.Metrics.SetTrackedOrders(o.cfg.Name(), len(initial))

	if !o.cfg.Passive {
		for i := range initial {
			if initial[i].AwaitingDriver() {
				o.assignAsync(initial[i].ID)
			}
		}
	}

	o.deps.Logger.Info(o.deps.Logger.WithField(ctx, "orders", len(initial)), "orchestrator started")
	go o.run(ctx, sub)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, sub orderfeed.Subscription) {
	defer close(o.done)
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			o.handle(ctx, event)
		}
	}
}

// Orders returns a snapshot of the view, newest first for seeded and inserted rows.
func (o *Orchestrator) Orders() []models.Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.Order, len(o.orders))
	for i := range o.orders {
		out[i] = *o.orders[i].Clone()
	}
	return out
}

// Warnings streams user-visible warnings. The channel closes after Close returns.
func (o *Orchestrator) Warnings() <-chan dispatch.Warning {
	return o.warnings
}

// Close stops the event loop, releases the subscription and waits for in-flight assignments.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		cancel, sub, started := o.cancel, o.sub, o.started
		o.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if sub != nil {
			o.closeErr = sub.Close()
		}
		if started {
			<-o.done
		}
		o.inflight.Wait()
		close(o.warnings)
	})
	return o.closeErr
}

func (o *Orchestrator) handle(ctx context.Context, event orderfeed.ChangeEvent) {
	if event.Table != "" && event.Table != orderfeed.OrdersTable {
		return
	}
	if o.seen.observe(event.ID) {
		o.deps.Logger.Debug(o.deps.Logger.WithField(ctx, "event_id", event.ID.String()), "duplicate change event skipped")
		return
	}
	o.deps.Metrics.IncFeedEvent(string(event.Type))
	ctx = o.deps.Logger.WithOrderID(ctx, event.OrderID().String())

	switch event.Type {
	case enums.ChangeInsert:
		o.applyInsert(ctx, event)
	case enums.ChangeUpdate:
		o.applyUpdate(ctx, event)
	case enums.ChangeDelete:
		o.remove(event.OrderID())
	default:
		o.deps.Logger.Warn(o.deps.Logger.WithField(ctx, "change", event.Type), "unknown change type")
		return
	}

	o.mu.RLock()
	tracked := len(o.orders)
	o.mu.RUnlock()
	o.deps.Metrics.SetTrackedOrders(o.cfg.Name(), tracked)

	if !o.cfg.Passive && o.deps.Sink != nil {
		if err := o.deps.Sink.Record(ctx, event); err != nil {
			o.deps.Logger.Error(ctx, "orchestrator.sink_failed", err)
		}
	}
}

func (o *Orchestrator) applyInsert(ctx context.Context, event orderfeed.ChangeEvent) {
	if event.New == nil {
		return
	}
	order := *event.New.Clone()
	o.mu.Lock()
	if idx := o.indexOf(order.ID); idx >= 0 {
		o.orders[idx] = order
	} else {
		o.orders = append([]models.Order{order}, o.orders...)
	}
	o.mu.Unlock()

	if o.cfg.Passive {
		return
	}
	if order.Status == enums.OrderStatusPending && o.claim(ctx, event.ID) {
		if _, err := o.deps.Notifier.NewOrder(ctx, &order); err != nil {
			o.deps.Logger.Error(ctx, "orchestrator.new_order_notification_failed", err)
		}
	}
	if order.AwaitingDriver() {
		o.assignAsync(order.ID)
	}
}

func (o *Orchestrator) applyUpdate(ctx context.Context, event orderfeed.ChangeEvent) {
	if event.New == nil {
		return
	}
	next := *event.New.Clone()

	o.mu.Lock()
	idx := o.indexOf(next.ID)
	switch {
	case idx < 0:
		o.orders = append(o.orders, next)
	case o.orders[idx].UpdatedAt.After(next.UpdatedAt):
		// Late delivery of an older image; the view already holds something newer.
		o.mu.Unlock()
		return
	default:
		o.orders[idx] = next
	}
	o.mu.Unlock()

	if o.cfg.Passive {
		return
	}

	statusChanged := event.Old == nil || event.Old.Status != next.Status
	driverChanged := next.DriverID != nil &&
		(event.Old == nil || event.Old.DriverID == nil || *event.Old.DriverID != *next.DriverID)
	if (statusChanged || driverChanged) && o.claim(ctx, event.ID) {
		if statusChanged {
			if _, err := o.deps.Notifier.OrderStatusChanged(ctx, &next); err != nil {
				o.deps.Logger.Error(ctx, "orchestrator.status_notification_failed", err)
			}
		}
		if driverChanged {
			if _, err := o.deps.Notifier.DriverAssigned(ctx, &next); err != nil {
				o.deps.Logger.Error(ctx, "orchestrator.driver_notification_failed", err)
			}
		}
	}
	if next.AwaitingDriver() {
		o.assignAsync(next.ID)
	}
}

func (o *Orchestrator) remove(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if idx := o.indexOf(id); idx >= 0 {
		o.orders = append(o.orders[:idx], o.orders[idx+1:]...)
	}
}

// indexOf must be called with mu held.
func (o *Orchestrator) indexOf(id uuid.UUID) int {
	for i := range o.orders {
		if o.orders[i].ID == id {
			return i
		}
	}
	return -1
}

// claim reports whether this process should fire notifications for the event.
// A claimer outage fails open: a duplicate notification beats a lost one.
func (o *Orchestrator) claim(ctx context.Context, eventID uuid.UUID) bool {
	if o.deps.Claimer == nil {
		return true
	}
	won, err := o.deps.Claimer.Claim(ctx, NotificationConsumer, eventID)
	if err != nil {
		o.deps.Logger.Error(ctx, "orchestrator.claim_failed", err)
		return true
	}
	return won
}

// assignAsync runs one auto-assignment per order at a time. The run is detached
// from the loop context so Close never interrupts a half-done claim.
func (o *Orchestrator) assignAsync(orderID uuid.UUID) {
	o.mu.Lock()
	if _, busy := o.assigning[orderID]; busy {
		o.mu.Unlock()
		return
	}
	o.assigning[orderID] = struct{}{}
	base := o.baseCtx
	o.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer func() {
			o.mu.Lock()
			delete(o.assigning, orderID)
			o.mu.Unlock()
		}()

		ctx := o.deps.Logger.WithOrderID(context.WithoutCancel(base), orderID.String())
		result, err := o.deps.Assigner.AutoAssign(ctx, orderID)
		if err != nil {
			o.deps.Logger.Error(ctx, "orchestrator.auto_assign_failed", err)
			return
		}
		if result.Warning != nil {
			o.emitWarning(ctx, *result.Warning)
		}
	}()
}

func (o *Orchestrator) emitWarning(ctx context.Context, warning dispatch.Warning) {
	select {
	case o.warnings <- warning:
	default:
		o.deps.Logger.Warn(o.deps.Logger.WithField(ctx, "order_number", warning.OrderNumber), "warning buffer full, dropping warning")
	}
}
