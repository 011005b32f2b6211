package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/internal/dispatch"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultSweepGrace = time.Minute
	defaultSweepBatch = 50
)

// ReadyOrderSweepJobParams configure the stuck-order sweep.
type ReadyOrderSweepJobParams struct {
	Logger   *logger.Logger
	Orders   awaitingDriverReader
	Assigner orderAssigner
	// Grace skips orders that turned ready too recently for the live orchestrator to have tried.
	Grace     time.Duration
	BatchSize int
}

type awaitingDriverReader interface {
	ListAwaitingDriver(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Order, error)
}

type orderAssigner interface {
	AutoAssign(ctx context.Context, orderID uuid.UUID) (dispatch.AssignmentResult, error)
}

// NewReadyOrderSweepJob builds the job that retries auto-assignment for ready orders left without a driver.
func NewReadyOrderSweepJob(params ReadyOrderSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Assigner == nil {
		return nil, fmt.Errorf("assigner required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &readyOrderSweepJob{
		logg:     params.Logger,
		orders:   params.Orders,
		assigner: params.Assigner,
		grace:    grace,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type readyOrderSweepJob struct {
	logg     *logger.Logger
	orders   awaitingDriverReader
	assigner orderAssigner
	grace    time.Duration
	batch    int
	now      func() time.Time
}

func (j *readyOrderSweepJob) Name() string { return "ready-order-sweep" }

func (j *readyOrderSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	stuck, err := j.orders.ListAwaitingDriver(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list ready orders: %w", err)
	}

	var (
		errs    error
		outcome = map[dispatch.Outcome]int{}
	)
	for _, order := range stuck {
		result, err := j.assigner.AutoAssign(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		outcome[result.Outcome]++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"orders_checked":  len(stuck),
		"assigned":        outcome[dispatch.OutcomeAssigned],
		"manual_required": outcome[dispatch.OutcomeManualRequired],
		"failed":          len(multierr.Errors(errs)),
	}), "ready order sweep complete")
	return errs
}
