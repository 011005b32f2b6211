package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ScopeConfigs expands the dispatch configuration into orchestrator scopes.
// There is always exactly one active admin scope watching every order; each
// listed business adds a passive restaurant view.
func ScopeConfigs(cfg config.DispatchConfig) ([]Config, error) {
	scopes := []Config{{
		Role:         enums.ActorRoleAdmin,
		DedupeWindow: cfg.DedupeWindow,
	}}
	if cfg.WatchesAll() {
		return scopes, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(cfg.Scopes))
	for _, raw := range cfg.Scopes {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		businessID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid dispatch scope %q: %w", raw, err)
		}
		if _, dup := seen[businessID]; dup {
			continue
		}
		seen[businessID] = struct{}{}
		id := businessID
		scopes = append(scopes, Config{
			BusinessID:   &id,
			Role:         enums.ActorRoleRestaurant,
			Passive:      true,
			DedupeWindow: cfg.DedupeWindow,
		})
	}
	return scopes, nil
}

// Group runs a set of orchestrators that share their dependencies.
type Group struct {
	members []*Orchestrator
	deps    Deps
	ready   chan struct{}
}

// NewGroup builds one orchestrator per scope.
func NewGroup(scopes []Config, deps Deps) (*Group, error) {
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one orchestrator scope required")
	}
	g := &Group{deps: deps, ready: make(chan struct{})}
	for _, scope := range scopes {
		o, err := New(scope, deps)
		if err != nil {
			return nil, fmt.Errorf("orchestrator %s: %w", scope.Name(), err)
		}
		g.members = append(g.members, o)
	}
	return g, nil
}

// Ready is closed once every member has subscribed to the feed.
// It stays open when a member fails to start.
func (g *Group) Ready() <-chan struct{} {
	return g.ready
}

// Run starts every orchestrator, logs their warnings and blocks until ctx ends.
// Members are closed before Run returns, so in-flight assignments finish first.
func (g *Group) Run(ctx context.Context) error {
	started := make([]*Orchestrator, 0, len(g.members))
	var startErr error
	for _, o := range g.members {
		if err := o.Start(ctx); err != nil {
			startErr = fmt.Errorf("start orchestrator %s: %w", o.cfg.Name(), err)
			break
		}
		started = append(started, o)
	}

	var warnings errgroup.Group
	for _, o := range started {
		warnings.Go(func() error {
			g.logWarnings(ctx, o)
			return nil
		})
	}

	if startErr == nil {
		close(g.ready)
		<-ctx.Done()
	}

	var closeErr error
	for _, o := range started {
		closeErr = multierr.Append(closeErr, o.Close())
	}
	_ = warnings.Wait()
	if startErr != nil {
		return multierr.Append(startErr, closeErr)
	}
	if closeErr != nil {
		return closeErr
	}
	return ctx.Err()
}

// logWarnings drains o's warnings until it closes.
func (g *Group) logWarnings(ctx context.Context, o *Orchestrator) {
	logg := g.deps.Logger
	scopeCtx := logg.WithField(ctx, "orchestrator", o.cfg.Name())
	for warning := range o.Warnings() {
		warnCtx := logg.WithOrderID(scopeCtx, warning.OrderID.String())
		warnCtx = logg.WithField(warnCtx, "order_number", warning.OrderNumber)
		logg.Warn(warnCtx, warning.Message)
	}
}
