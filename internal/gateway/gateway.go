// Package gateway serves the web chat surface: an embedded chat page, turn
// streaming over SSE and WebSocket, session management routes, health and
// prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/dschat/internal/agent"
	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/security"
)

// Options configures a Gateway.
type Options struct {
	Config   Config
	Store    *memory.Store
	Executor *agent.Executor

	// Metrics is served on /metrics when set.
	Metrics http.Handler

	// DefaultStrategy is used when a turn names none.
	DefaultStrategy string

	Version string
	Logger  *slog.Logger
}

// Gateway is the HTTP surface. Handlers share the injected Store; turns of
// one session are serialized through the store's lane lock.
type Gateway struct {
	config   Config
	store    *memory.Store
	executor *agent.Executor
	metrics  http.Handler
	limiter  *security.RateLimiter
	strategy string
	version  string
	logger   *slog.Logger

	startedAt time.Time
}

// New creates a Gateway.
func New(opts Options) *Gateway {
	opts.Config.defaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	strategy := opts.DefaultStrategy
	if strategy == "" {
		strategy = ctxengine.StrategyDefault
	}
	return &Gateway{
		config:    opts.Config,
		store:     opts.Store,
		executor:  opts.Executor,
		metrics:   opts.Metrics,
		limiter:   security.NewRateLimiter(opts.Config.TurnsPerMinute, time.Minute),
		strategy:  strategy,
		version:   opts.Version,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Limiter returns the per-client turn limiter so the prune job can sweep it.
func (g *Gateway) Limiter() *security.RateLimiter { return g.limiter }

// Handler returns the routed handler.
func (g *Gateway) Handler() http.Handler { return g.buildRouter() }

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	return nil
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
