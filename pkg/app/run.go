// Package app wires configuration into the dschat components and runs the
// console, web gateway and MCP surfaces.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flemzord/dschat/internal/config"
	"github.com/flemzord/dschat/internal/console"
	"github.com/flemzord/dschat/internal/cron"
	"github.com/flemzord/dschat/internal/gateway"
	"github.com/flemzord/dschat/internal/mcpserver"
	"github.com/flemzord/dschat/internal/security"
)

// closeTimeout bounds the final flush of sessions at shutdown.
const closeTimeout = 10 * time.Second

// Describe renders the build identity printed by the version command.
func Describe(version, commit, date string) string {
	return fmt.Sprintf("dschat %s (commit: %s, built: %s)", version, commit, date)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", "signal", sig.String())
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Gateway builds the HTTP gateway over the shared store and executor.
func (a *App) Gateway() *gateway.Gateway {
	g := a.Config.Gateway
	return gateway.New(gateway.Options{
		Config: gateway.Config{
			Bind:           g.Bind,
			ReadTimeout:    config.Duration(g.ReadTimeout, 30*time.Second),
			WriteTimeout:   config.Duration(g.WriteTimeout, 0),
			BearerToken:    g.Auth.BearerToken,
			TurnsPerMinute: g.TurnsPerMinute,
		},
		Store:           a.Store,
		Executor:        a.Executor,
		Metrics:         a.Metrics.Handler(),
		DefaultStrategy: a.Config.Context.Strategy,
		Version:         a.Version,
		Logger:          a.Logger.With("component", "gateway"),
	})
}

// Scheduler registers the autosave and prune jobs. limiter may be nil.
func (a *App) Scheduler(limiter *security.RateLimiter) (*cron.Scheduler, error) {
	c := a.Config.Cron
	logger := a.Logger.With("component", "cron")
	s := cron.NewScheduler(logger)

	jobs := []cron.Job{
		&cron.AutosaveJob{Store: a.Store, Logger: logger, ScheduleExpr: c.Autosave},
		&cron.PruneJob{
			Store:        a.Store,
			MaxIdle:      config.Duration(c.IdleTTL, 24*time.Hour),
			Limiter:      sweeper(limiter),
			Logger:       logger,
			ScheduleExpr: c.Prune,
		},
	}
	for _, j := range jobs {
		if err := s.RegisterJob(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// sweeper avoids handing the prune job a typed nil.
func sweeper(l *security.RateLimiter) cron.Sweeper {
	if l == nil {
		return nil
	}
	return l
}

// Serve runs the web gateway and the scheduled jobs until ctx is done,
// then flushes every session.
func (a *App) Serve(ctx context.Context) error {
	gw := a.Gateway()
	sched, err := a.Scheduler(gw.Limiter())
	if err != nil {
		return err
	}
	return a.runWithJobs(ctx, sched, gw.Run)
}

// ChatParams configures an interactive console session.
type ChatParams struct {
	SessionID   string
	Strategy    string
	In          io.Reader
	Out         io.Writer
	Interactive bool
	Width       int
}

// Chat runs the console until the user quits or ctx is done.
func (a *App) Chat(ctx context.Context, p ChatParams) error {
	strategy := p.Strategy
	if strategy == "" {
		strategy = a.Config.Context.Strategy
	}
	c := console.New(console.Options{
		Store:       a.Store,
		Executor:    a.Executor,
		SessionID:   p.SessionID,
		Strategy:    strategy,
		In:          p.In,
		Out:         p.Out,
		Interactive: p.Interactive,
		Width:       p.Width,
		Logger:      a.Logger.With("component", "console"),
	})
	sched, err := a.Scheduler(nil)
	if err != nil {
		return err
	}
	return a.runWithJobs(ctx, sched, func(ctx context.Context) error {
		return c.Run(ctx)
	})
}

// MCP speaks the Model Context Protocol over in/out until ctx is done or
// in is closed.
func (a *App) MCP(ctx context.Context, in io.Reader, out io.Writer) error {
	srv := mcpserver.New(mcpserver.Options{
		Store:           a.Store,
		Executor:        a.Executor,
		DefaultStrategy: a.Config.Context.Strategy,
		Version:         a.Version,
		Logger:          a.Logger.With("component", "mcp"),
	})
	sched, err := a.Scheduler(nil)
	if err != nil {
		return err
	}
	return a.runWithJobs(ctx, sched, func(ctx context.Context) error {
		return srv.Serve(ctx, in, out)
	})
}

// runWithJobs runs surface alongside the scheduler. When surface returns
// the scheduler is stopped; sessions are flushed either way.
func (a *App) runWithJobs(ctx context.Context, sched *cron.Scheduler, surface func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return surface(gctx)
	})
	err := g.Wait()

	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer flushCancel()
	if ferr := a.Store.SaveAll(flushCtx); ferr != nil {
		a.Logger.Warn("final session flush failed", "error", ferr)
	}
	a.Logger.Info("shutdown complete")
	return err
}
