// Package bootstrap holds the start-up and shutdown sequence shared by the
// service binaries.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/migrate"
	"github.com/angelmondragon/dishdash-backend/pkg/pubsub"
	"github.com/angelmondragon/dishdash-backend/pkg/redis"
)

const defaultShutdownTimeout = 10 * time.Second

type closer struct {
	name string
	fn   func() error
}

// Process is one running binary: its config and logger, the connections it
// opened and the loops it runs until a signal arrives or a loop fails.
type Process struct {
	Config *config.Config
	Logger *logger.Logger

	ShutdownTimeout time.Duration

	ctx      context.Context
	stop     context.CancelFunc
	group    *errgroup.Group
	groupCtx context.Context
	closers  []closer
	exit     func(int)
}

// Start loads .env and config, builds the service logger and arms SIGINT and
// SIGTERM. Any failure here ends the process.
func Start(kind string) *Process {
	boot := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = kind

	logg := logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console" && !cfg.App.IsProd(),
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	p := newProcess(ctx, cfg, logg)
	p.stop = stop
	return p
}

func newProcess(ctx context.Context, cfg *config.Config, logg *logger.Logger) *Process {
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})
	group, groupCtx := errgroup.WithContext(ctx)
	return &Process{
		Config:          cfg,
		Logger:          logg,
		ShutdownTimeout: defaultShutdownTimeout,
		ctx:             ctx,
		stop:            func() {},
		group:           group,
		groupCtx:        groupCtx,
		exit:            os.Exit,
	}
}

// Context is cancelled on SIGINT or SIGTERM and carries the process log fields.
func (p *Process) Context() context.Context { return p.ctx }

// Must logs and ends the process, closing what was opened so far, when err is set.
func (p *Process) Must(err error, msg string) {
	if err == nil {
		return
	}
	p.Logger.Error(p.ctx, msg, err)
	p.close()
	p.exit(1)
}

// OnClose registers fn to run at shutdown. Closers run in reverse order.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Database opens the configured database and applies dev migrations.
func (p *Process) Database() *db.Client {
	client, err := db.New(p.ctx, p.Config.DB, p.Config.FeatureFlags.UseSQLite, p.Logger)
	p.Must(err, "failed to bootstrap database")
	p.OnClose("database", client.Close)
	if p.Config.App.IsDev() && p.Config.FeatureFlags.AutoMigrate {
		applied, err := migrate.Local(p.ctx, client.DB(), p.Config.FeatureFlags.UseSQLite)
		p.Must(err, "failed to run dev migrations")
		p.Logger.Info(p.Logger.WithField(p.ctx, "applied", applied), "dev schema up to date")
	}
	return client
}

func (p *Process) Redis() *redis.Client {
	client, err := redis.New(p.ctx, p.Config.Redis, p.Logger)
	p.Must(err, "failed to bootstrap redis")
	p.OnClose("redis", client.Close)
	return client
}

func (p *Process) PubSub() *pubsub.Client {
	client, err := pubsub.NewClient(p.ctx, p.Config.GCP, p.Config.PubSub, p.Logger)
	p.Must(err, "failed to bootstrap pubsub")
	p.OnClose("pubsub", client.Close)
	return client
}

// Go runs fn until the process stops. A context cancellation is a clean exit;
// any other error stops every loop.
func (p *Process) Go(name string, fn func(ctx context.Context) error) {
	p.group.Go(func() error {
		p.Logger.Info(p.Logger.WithField(p.ctx, "loop", name), "loop started")
		if err := fn(p.groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}

// Serve runs srv until the process stops, then drains it within ShutdownTimeout.
func (p *Process) Serve(name string, srv *http.Server) {
	p.Go(name, func(context.Context) error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	p.group.Go(func() error {
		<-p.groupCtx.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// ServeMetrics exposes the default Prometheus registry on the metrics port.
func (p *Process) ServeMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	p.Serve("metrics", &http.Server{
		Addr:              ":" + p.Config.Service.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	})
}

// Wait blocks until every loop has returned, closes resources and exits
// non-zero when a loop failed.
func (p *Process) Wait() {
	p.Logger.Info(p.ctx, "service started")
	err := p.group.Wait()
	p.close()
	if err != nil {
		p.Logger.Error(p.ctx, "service stopped unexpectedly", err)
		p.exit(1)
		return
	}
	p.Logger.Info(p.ctx, "service shut down gracefully")
}

func (p *Process) close() {
	p.stop()
	for _, c := range slices.Backward(p.closers) {
		if err := c.fn(); err != nil {
			p.Logger.Error(p.Logger.WithField(p.ctx, "resource", c.name), "error closing resource", err)
		}
	}
	p.closers = nil
}
