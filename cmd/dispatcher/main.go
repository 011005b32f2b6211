package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dishdash-backend/internal/analytics"
	"github.com/angelmondragon/dishdash-backend/internal/analytics/writer"
	"github.com/angelmondragon/dishdash-backend/internal/bootstrap"
	"github.com/angelmondragon/dishdash-backend/internal/dispatch"
	"github.com/angelmondragon/dishdash-backend/internal/drivers"
	"github.com/angelmondragon/dishdash-backend/internal/notifications"
	"github.com/angelmondragon/dishdash-backend/internal/orchestrator"
	"github.com/angelmondragon/dishdash-backend/internal/orderfeed"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/bigquery"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/claims"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

func main() {
	proc := bootstrap.Start("dispatcher")
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database()
	redisClient := proc.Redis()
	pubsubClient := proc.PubSub()

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		proc.Must(errors.New("missing subscription"), "orders subscription not configured")
	}
	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must(err, "failed to build event registry")

	broker := orderfeed.NewBroker()
	proc.OnClose("feed broker", func() error { broker.Close(); return nil })
	feed, err := orderfeed.NewPubSubFeed(subscription, eventRegistry, broker, logg)
	proc.Must(err, "failed to create order feed")

	// Assignments made here travel back through the outbox and Pub/Sub like any other change.
	changes, err := orders.NewChangeRecorder(outbox.NewWriter(outbox.NewRepository(dbClient.DB()), logg), nil)
	proc.Must(err, "failed to create change recorder")

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, dbClient, changes, logg)
	proc.Must(err, "failed to create orders service")

	notifier, err := notifications.NewNotifier(notifications.NewRepository(dbClient.DB()), logg)
	proc.Must(err, "failed to create notifier")

	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)
	assigner, err := dispatch.NewAssigner(ordersRepo, drivers.NewRepository(dbClient.DB()), dbClient, changes, notifier, logg, dispatch.Options{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Metrics:     dispatchMetrics,
	})
	proc.Must(err, "failed to create assigner")

	claimer, err := claims.New(redisClient, cfg.Eventing.IdempotencyTTL)
	proc.Must(err, "failed to create event claims")

	deps := orchestrator.Deps{
		Feed:     broker,
		Loader:   ordersService,
		Assigner: assigner,
		Notifier: notifier,
		Claimer:  claimer,
		Metrics:  dispatchMetrics,
		Logger:   logg,
	}
	if cfg.BigQuery.Enabled {
		deps.Sink = analyticsSink(proc)
	}

	scopes, err := orchestrator.ScopeConfigs(cfg.Dispatch)
	proc.Must(err, "invalid dispatch scopes")
	orchestrators, err := orchestrator.NewGroup(scopes, deps)
	proc.Must(err, "failed to create orchestrators")

	proc.Go("orchestrators", orchestrators.Run)
	// backlog waits until every view is subscribed
	proc.Go("order feed", func(ctx context.Context) error {
		select {
		case <-orchestrators.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}
		return feed.Run(ctx)
	})
	proc.ServeMetrics()
	proc.Wait()
}

// analyticsSink streams order lifecycle rows to BigQuery. Buffered rows are
// flushed before the client closes.
func analyticsSink(proc *bootstrap.Process) *analytics.Sink {
	cfg := proc.Config
	bqClient, err := bigquery.NewClient(proc.Context(), cfg.GCP, cfg.BigQuery, proc.Logger)
	proc.Must(err, "failed to bootstrap bigquery")
	proc.OnClose("bigquery", bqClient.Close)

	rows, err := writer.New(bqClient, writer.Config{
		BatchSize: cfg.BigQuery.BatchSize,
		MaxDelay:  cfg.BigQuery.FlushAfter,
	})
	proc.Must(err, "failed to create analytics writer")
	sink, err := analytics.NewSink(rows)
	proc.Must(err, "failed to create analytics sink")

	proc.OnClose("analytics rows", func() error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(proc.Context()), proc.ShutdownTimeout)
		defer cancel()
		return sink.Flush(ctx)
	})
	return sink
}
