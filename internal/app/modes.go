package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/server"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/server/handler"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/server/ws"
)

// shutdownGrace bounds how long mode teardown may take: closing an open
// position and cancelling resting orders on the exchange.
const shutdownGrace = 30 * time.Second

// TradeMode runs only the tick loop; no HTTP surface.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Orchestrator.Run(ctx)
	})

	err := g.Wait()
	a.flattenOnExit(deps)
	return err
}

// ServerMode runs only the HTTP + WebSocket API. The orchestrator is wired
// but not ticking, so the status endpoint reports running=false.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the tick loop and the HTTP + WebSocket API together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Orchestrator.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	err := g.Wait()
	a.flattenOnExit(deps)
	return err
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Orchestrator.Status, a.logger)
	deps.Orchestrator.WithBroadcaster(hub)

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, deps.StartedAt, deps.Orchestrator.Status),
	}
	if deps.EventStore != nil {
		handlers.Events = handler.NewEventsHandler(deps.EventStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// flattenOnExit closes any open position and cancels resting exchange orders
// before the process exits. Run after the errgroup has drained so the tick
// loop no longer races the close. Uses a fresh context: the run context is
// already cancelled by the time teardown starts.
func (a *App) flattenOnExit(deps *Dependencies) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := deps.Orchestrator.Shutdown(ctx); err != nil {
		a.logger.Error("shutdown: position close failed", slog.Any("error", err))
	}

	if deps.LiveTrading {
		if err := deps.Clob.CancelAll(ctx); err != nil {
			a.logger.Error("shutdown: cancel resting orders failed", slog.Any("error", err))
		}
	}
}
