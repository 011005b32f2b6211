package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

const defaultInterval = 24 * time.Hour

// Schedule groups jobs that share a cadence and a lock.
type Schedule struct {
	Name     string
	Interval time.Duration
	Jobs     []Job
}

type runRecorder interface {
	ObserveRun(job string, took time.Duration, err error)
	ObserveSkippedCycle(schedule string)
}

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule Schedule
	Lock     Lock
	Metrics  runRecorder
}

// Service runs one schedule on a ticker, taking the lock for every cycle.
type Service struct {
	logg     *logger.Logger
	schedule Schedule
	lock     Lock
	metrics  runRecorder
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	schedule := params.Schedule
	if schedule.Name == "" {
		return nil, errors.New("schedule name required")
	}
	if schedule.Interval <= 0 {
		schedule.Interval = defaultInterval
	}
	jobs := make([]Job, 0, len(schedule.Jobs))
	for _, job := range schedule.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("schedule %s has no jobs", schedule.Name)
	}
	schedule.Jobs = jobs

	return &Service{
		logg:     params.Logger,
		schedule: schedule,
		lock:     params.Lock,
		metrics:  params.Metrics,
	}, nil
}

// Run fires a cycle immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"schedule": s.schedule.Name,
		"interval": s.schedule.Interval.String(),
	})
	ticker := time.NewTicker(s.schedule.Interval)
	defer ticker.Stop()

	for {
		if err := s.tick(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle finished with errors", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick runs every job once while holding the lock. A failing job does not
// stop the ones after it; all failures come back together.
func (s *Service) tick(ctx context.Context) (errs error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !held {
		s.logg.Debug(ctx, "schedule locked by another worker")
		if s.metrics != nil {
			s.metrics.ObserveSkippedCycle(s.schedule.Name)
		}
		return nil
	}
	defer func() {
		errs = multierr.Append(errs, s.lock.Release(context.WithoutCancel(ctx)))
	}()

	for _, job := range s.schedule.Jobs {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := s.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	err := job.Run(ctx)
	took := time.Since(started)
	if s.metrics != nil {
		s.metrics.ObserveRun(job.Name(), took, err)
	}
	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Warn(ctx, "job failed")
		return err
	}
	s.logg.Info(ctx, "job completed")
	return nil
}
