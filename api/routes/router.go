package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/dishdash-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/dishdash-backend/api/controllers/orders"
	"github.com/angelmondragon/dishdash-backend/api/middleware"
	"github.com/angelmondragon/dishdash-backend/internal/drivers"
	"github.com/angelmondragon/dishdash-backend/internal/notifications"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/dishdash-backend/pkg/redis"
)

// RequestStore backs idempotent replays and the per-user write limit.
type RequestStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies is everything the router hands to controllers.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	Metrics       *metrics.HTTPMetrics
	Health        map[string]controllers.Pinger
	Store         RequestStore
	Orders        orders.Service
	Assigner      ordercontrollers.DriverAssigner
	Drivers       drivers.Service
	Notifications notifications.Inbox
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.RateLimit(cfg.RateLimit, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Health))
	})

	writePolicy := middleware.NewWriteRateLimitPolicy("writes", cfg.RateLimit.WriteWindow, cfg.RateLimit.WriteLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.WriteRateLimit(writePolicy, deps.Store, logg))
		r.Use(middleware.Idempotency(deps.Store, logg))

		staff := middleware.RequireRole(logg, enums.ActorRoleRestaurant, enums.ActorRoleDriver, enums.ActorRoleAdmin)
		adminOnly := middleware.RequireRole(logg, enums.ActorRoleAdmin)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleAdmin)).
				Post("/", ordercontrollers.Place(deps.Orders, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
				r.Get("/history", ordercontrollers.History(deps.Orders, logg))
				r.With(adminOnly).Delete("/", ordercontrollers.Delete(deps.Orders, logg))
				r.With(staff).Post("/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.With(staff).Post("/advance", ordercontrollers.Advance(deps.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.ActorRoleRestaurant, enums.ActorRoleAdmin)).
					Post("/cancel", ordercontrollers.Cancel(deps.Orders, logg))
				r.With(adminOnly).Post("/assign", ordercontrollers.Assign(deps.Assigner, logg))
			})
		})

		r.Route("/drivers/me", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleDriver))
			r.Get("/", controllers.CurrentDriver(deps.Drivers, logg))
			r.Post("/availability", controllers.DriverAvailability(deps.Drivers, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}
