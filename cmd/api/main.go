package main

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/dishdash-backend/api/controllers"
	"github.com/angelmondragon/dishdash-backend/api/routes"
	"github.com/angelmondragon/dishdash-backend/internal/bootstrap"
	"github.com/angelmondragon/dishdash-backend/internal/dispatch"
	"github.com/angelmondragon/dishdash-backend/internal/drivers"
	"github.com/angelmondragon/dishdash-backend/internal/notifications"
	"github.com/angelmondragon/dishdash-backend/internal/orchestrator"
	"github.com/angelmondragon/dishdash-backend/internal/orderfeed"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("api")
	proc.ShutdownTimeout = 15 * time.Second
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database()
	redisClient := proc.Redis()

	// With the local feed every committed change is also published in-process,
	// so this instance can run its own orchestrators without Pub/Sub.
	var (
		broker *orderfeed.Broker
		sink   orderfeed.Publisher
	)
	if cfg.FeatureFlags.UseLocalFeed {
		broker = orderfeed.NewBroker()
		sink = broker
		proc.OnClose("local feed", func() error { broker.Close(); return nil })
	}

	outboxWriter := outbox.NewWriter(outbox.NewRepository(dbClient.DB()), logg)
	changes, err := orders.NewChangeRecorder(outboxWriter, sink)
	proc.Must(err, "failed to create change recorder")

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, dbClient, changes, logg)
	proc.Must(err, "failed to create orders service")

	driversRepo := drivers.NewRepository(dbClient.DB())
	driversService, err := drivers.NewService(driversRepo, dbClient, outboxWriter, logg)
	proc.Must(err, "failed to create drivers service")

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	notificationsInbox, err := notifications.NewInbox(notificationsRepo)
	proc.Must(err, "failed to create notifications service")
	notifier, err := notifications.NewNotifier(notificationsRepo, logg)
	proc.Must(err, "failed to create notifier")

	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)
	assigner, err := dispatch.NewAssigner(ordersRepo, driversRepo, dbClient, changes, notifier, logg, dispatch.Options{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Metrics:     dispatchMetrics,
	})
	proc.Must(err, "failed to create assigner")

	if broker != nil {
		scopes, err := orchestrator.ScopeConfigs(cfg.Dispatch)
		proc.Must(err, "invalid dispatch scopes")
		orchestrators, err := orchestrator.NewGroup(scopes, orchestrator.Deps{
			Feed:     broker,
			Loader:   ordersService,
			Assigner: assigner,
			Notifier: notifier,
			Metrics:  dispatchMetrics,
			Logger:   logg,
		})
		proc.Must(err, "failed to create orchestrators")
		proc.Go("local orchestrators", orchestrators.Run)
	}

	// Heroku-style platforms inject PORT; it wins over config.
	port := cfg.App.Port
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	proc.Serve("http", &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:  cfg,
			Logger:  logg,
			Metrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			Health: map[string]controllers.Pinger{
				"db":    dbClient,
				"redis": redisClient,
			},
			Store:         redisClient,
			Orders:        ordersService,
			Assigner:      assigner,
			Drivers:       driversService,
			Notifications: notificationsInbox,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	})
	proc.Wait()
}
