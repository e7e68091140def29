package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/flemzord/dschat/internal/agent"
	"github.com/flemzord/dschat/internal/config"
	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/security"
	"github.com/flemzord/dschat/internal/telemetry"
	"github.com/flemzord/dschat/modules/memory/sqlite"
	"github.com/flemzord/dschat/modules/provider/openai"
)

// Params configures Build.
type Params struct {
	// ConfigPath is an explicit configuration file. Empty searches the
	// standard locations and falls back to built-in defaults.
	ConfigPath string

	// Version, Commit and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// LogLevel overrides log.level when non-empty.
	LogLevel string
}

// App holds the components shared by every surface. Build creates it and
// Close releases it.
type App struct {
	Config     *config.Config
	ConfigPath string
	Version    string

	Logger   *slog.Logger
	Provider *openai.Provider
	Store    *memory.Store
	Executor *agent.Executor
	Metrics  *telemetry.Metrics

	// SQLite is set when the sqlite storage backend is selected.
	SQLite *sqlite.Backend

	closers []func(context.Context) error
}

// Open loads and validates the configuration and opens the session store
// without contacting the upstream. Commands that only manage sessions use
// it; they work without an API key.
func Open(ctx context.Context, params Params) (*App, error) {
	a, err := load(params)
	if err != nil {
		return nil, err
	}
	p := a.Config.Provider
	if err := a.openStore(ctx, memory.Metadata{Provider: p.Kind, Model: p.Model}); err != nil {
		return nil, err
	}
	return a, nil
}

// Build loads and validates the configuration and wires the provider,
// session store, executor and telemetry.
func Build(ctx context.Context, params Params) (*App, error) {
	a, err := load(params)
	if err != nil {
		return nil, err
	}
	cfg, logger := a.Config, a.Logger

	prov, err := openai.New(providerConfig(cfg.Provider), openai.WithLogger(logger.With("component", "provider")))
	if err != nil {
		return nil, err
	}
	a.Provider = prov

	if err := a.openStore(ctx, memory.Metadata{Provider: prov.Name(), Model: prov.ModelName()}); err != nil {
		return nil, err
	}

	shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     params.Version,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	a.Metrics = telemetry.NewMetrics(a.Store.Len)
	a.Executor = agent.NewExecutor(agent.Options{
		Provider: prov,
		Counter:  newCounter(cfg.Context, logger),
		Pricing:  prov.Pricing(),
		Strategy: strategyConfig(cfg.Context),
		Config: agent.Config{
			SystemPrompt: cfg.Context.SystemPrompt,
			MaxTokens:    cfg.Provider.MaxTokens,
			TitleTurns:   cfg.Context.TitleTurns,
			SaveTimeout:  config.Duration(cfg.Context.SaveTimeout, agent.DefaultSaveTimeout),
		},
		Saver:    a.Store,
		Observer: a.Metrics,
		Logger:   logger.With("component", "agent"),
	})

	logger.Info("dschat ready",
		"provider", prov.Name(),
		"model", prov.ModelName(),
		"strategy", cfg.Context.Strategy,
		"storage", cfg.Storage.Backend,
	)
	return a, nil
}

func load(params Params) (*App, error) {
	cfg, path, err := config.LoadOrDefault(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := NewLogger(cfg.Log, out, cfg.Provider.APIKey, cfg.Gateway.Auth.BearerToken)
	if err != nil {
		return nil, err
	}
	if path == "" {
		logger.Debug("no configuration file found, using defaults")
	}
	return &App{Config: cfg, ConfigPath: path, Version: params.Version, Logger: logger}, nil
}

func (a *App) openStore(ctx context.Context, meta memory.Metadata) error {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	a.Store = memory.NewStore(memory.StoreOptions{
		Backend:  backend,
		Capacity: a.Config.Context.Capacity,
		Metadata: meta,
		Logger:   a.Logger.With("component", "memory"),
	})
	if a.SQLite != nil {
		db := a.SQLite
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	}
	a.closers = append(a.closers, a.Store.Close)
	return nil
}

// Close flushes sessions and releases resources in reverse order of
// acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the process logger. Every record passes through a
// redacting handler that hides the given secrets and key-shaped strings.
func NewLogger(cfg config.LogConfig, w io.Writer, secrets ...string) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, security.NewRedactor(secrets...))), nil
}

func (a *App) openBackend(ctx context.Context) (memory.Backend, error) {
	s := a.Config.Storage
	switch s.Backend {
	case "memory":
		return nil, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, sqlite.Config{Path: s.SQLitePath}, a.Logger.With("component", "sqlite"))
		if err != nil {
			return nil, err
		}
		a.SQLite = db
		return db, nil
	default:
		return memory.NewFileBackend(s.Dir), nil
	}
}

func providerConfig(p config.ProviderConfig) openai.Config {
	return openai.Config{
		Kind:             p.Kind,
		APIKey:           p.APIKey,
		Model:            p.Model,
		BaseURL:          p.BaseURL,
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		Timeout:          p.Timeout,
		Pricing:          p.Pricing,
	}
}

func newCounter(c config.ContextConfig, logger *slog.Logger) *ctxengine.TokenCounter {
	opts := []ctxengine.CounterOption{ctxengine.WithOverhead(*c.Overhead.PerMessage, *c.Overhead.PerName)}
	if c.Tokenizer == "tiktoken" {
		opts = append(opts, ctxengine.WithTokenizerSource(ctxengine.TiktokenSource(logger.With("component", "tokenizer"))))
	}
	return ctxengine.NewTokenCounter(opts...)
}

func strategyConfig(c config.ContextConfig) ctxengine.Config {
	return ctxengine.Config{
		WindowSize: c.WindowSize,
		Compression: ctxengine.CompressionConfig{
			Enabled:   *c.Compression.Enabled,
			Threshold: c.Compression.Threshold,
			Keep:      c.Compression.Keep,
		},
		SummaryTemperature: ctxengine.DefaultSummaryTemperature,
		FactsTemperature:   ctxengine.DefaultFactsTemperature,
	}
}
