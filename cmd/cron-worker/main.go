package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dishdash-backend/internal/bootstrap"
	"github.com/angelmondragon/dishdash-backend/internal/cron"
	"github.com/angelmondragon/dishdash-backend/internal/dispatch"
	"github.com/angelmondragon/dishdash-backend/internal/drivers"
	"github.com/angelmondragon/dishdash-backend/internal/notifications"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database()
	redisClient := proc.Redis()

	outboxRepo := outbox.NewRepository(dbClient.DB())
	changes, err := orders.NewChangeRecorder(outbox.NewWriter(outboxRepo, logg), nil)
	proc.Must(err, "failed to create change recorder")
	ordersRepo := orders.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())
	notifier, err := notifications.NewNotifier(notificationsRepo, logg)
	proc.Must(err, "failed to create notifier")

	registerer := prometheus.DefaultRegisterer
	assigner, err := dispatch.NewAssigner(ordersRepo, drivers.NewRepository(dbClient.DB()), dbClient, changes, notifier, logg, dispatch.Options{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Metrics:     metrics.NewDispatchMetrics(registerer),
	})
	proc.Must(err, "failed to create assigner")

	sweepJob, err := cron.NewReadyOrderSweepJob(cron.ReadyOrderSweepJobParams{
		Logger:    logg,
		Orders:    ordersRepo,
		Assigner:  assigner,
		Grace:     cfg.Dispatch.SweepInterval,
		BatchSize: cfg.Dispatch.SweepBatchSize,
	})
	proc.Must(err, "failed to create sweep job")

	purge := cron.PurgeParams{Logger: logg, BatchSize: cfg.Housekeeping.DeleteBatch}
	purge.Retention = cfg.Outbox.Retention
	retentionJob, err := cron.NewOutboxRetentionJob(purge, dbClient, outboxRepo)
	proc.Must(err, "failed to create outbox retention job")
	purge.Retention = cfg.Housekeeping.NotificationRetention
	cleanupJob, err := cron.NewNotificationCleanupJob(purge, notificationsRepo)
	proc.Must(err, "failed to create notification cleanup job")

	cronMetrics := metrics.NewCronJobMetrics(registerer)
	schedules := []struct {
		schedule cron.Schedule
		lockTTL  time.Duration
	}{
		{cron.Schedule{Name: "sweep", Interval: cfg.Dispatch.SweepInterval, Jobs: []cron.Job{sweepJob}}, cfg.Dispatch.CronLockTTL},
		{cron.Schedule{Name: "housekeeping", Interval: cfg.Housekeeping.Interval, Jobs: []cron.Job{retentionJob, cleanupJob}}, 0},
	}
	for _, s := range schedules {
		lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env, s.schedule.Name)), s.lockTTL)
		proc.Must(err, "failed to create "+s.schedule.Name+" lock")
		service, err := cron.NewService(cron.ServiceParams{
			Logger:   logg,
			Schedule: s.schedule,
			Lock:     lock,
			Metrics:  cronMetrics,
		})
		proc.Must(err, "failed to create "+s.schedule.Name+" service")
		proc.Go(s.schedule.Name, service.Run)
	}
	proc.ServeMetrics()
	proc.Wait()
}

func lockName(env, schedule string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s:%s", env, schedule)
}
