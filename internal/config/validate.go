package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	ctxengine "github.com/flemzord/dschat/internal/context"
)

// Validate checks the structural validity of a defaulted Config and
// reports every problem at once. A missing API key is not an error here:
// commands that never reach the upstream (sessions, config) still work.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", cfg.Log.Format))
	}

	errs = append(errs, validateProvider(&cfg.Provider)...)
	errs = append(errs, validateContext(&cfg.Context)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateGateway(&cfg.Gateway)...)
	errs = append(errs, validateCron(&cfg.Cron)...)

	return errors.Join(errs...)
}

func validateProvider(p *ProviderConfig) []error {
	var errs []error
	switch p.Kind {
	case "deepseek", "groq", "openai":
	default:
		errs = append(errs, fmt.Errorf("config: provider.kind %q is not one of deepseek, groq, openai", p.Kind))
	}
	if p.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("config: provider.max_tokens must not be negative, got %d", p.MaxTokens))
	}
	if err := positiveDuration("provider.timeout", p.Timeout); err != nil {
		errs = append(errs, err)
	}
	if p.Pricing.PromptPer1K < 0 || p.Pricing.CompletionPer1K < 0 {
		errs = append(errs, errors.New("config: provider.pricing must not be negative"))
	}
	return errs
}

func validateContext(c *ContextConfig) []error {
	var errs []error
	if !ctxengine.Known(c.Strategy) {
		errs = append(errs, fmt.Errorf("config: context.strategy %q is not one of %s",
			c.Strategy, strings.Join(ctxengine.Names(), ", ")))
	}
	if c.Capacity < 1 {
		errs = append(errs, fmt.Errorf("config: context.capacity must be positive, got %d", c.Capacity))
	}
	if c.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("config: context.window_size must be positive, got %d", c.WindowSize))
	}
	if c.Compression.Threshold < 1 || c.Compression.Keep < 1 {
		errs = append(errs, errors.New("config: context.compression threshold and keep must be positive"))
	} else if c.Compression.Keep >= c.Compression.Threshold {
		errs = append(errs, fmt.Errorf("config: context.compression.keep (%d) must be below threshold (%d)",
			c.Compression.Keep, c.Compression.Threshold))
	}
	if (c.Overhead.PerMessage != nil && *c.Overhead.PerMessage < 0) || (c.Overhead.PerName != nil && *c.Overhead.PerName < 0) {
		errs = append(errs, errors.New("config: context.overhead values must not be negative"))
	}
	switch c.Tokenizer {
	case "heuristic", "tiktoken":
	default:
		errs = append(errs, fmt.Errorf("config: context.tokenizer must be heuristic or tiktoken, got %q", c.Tokenizer))
	}
	for _, n := range c.TitleTurns {
		if n < 1 {
			errs = append(errs, fmt.Errorf("config: context.title_turns entries must be positive, got %d", n))
			break
		}
	}
	if err := positiveDuration("context.save_timeout", c.SaveTimeout); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func validateStorage(s *StorageConfig) []error {
	switch s.Backend {
	case "file":
		if s.Dir == "" {
			return []error{errors.New("config: storage.dir is required for the file backend")}
		}
	case "sqlite":
		if s.SQLitePath == "" {
			return []error{errors.New("config: storage.sqlite_path is required for the sqlite backend")}
		}
	case "memory":
	default:
		return []error{fmt.Errorf("config: storage.backend must be file, sqlite or memory, got %q", s.Backend)}
	}
	return nil
}

func validateGateway(g *GatewayConfig) []error {
	var errs []error
	if g.Bind == "" {
		errs = append(errs, errors.New("config: gateway.bind is required"))
	}
	if g.TurnsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("config: gateway.turns_per_minute must not be negative, got %d", g.TurnsPerMinute))
	}
	for name, v := range map[string]string{"gateway.read_timeout": g.ReadTimeout, "gateway.write_timeout": g.WriteTimeout} {
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("config: %s: invalid duration %q", name, v))
		}
	}
	return errs
}

func validateCron(c *CronConfig) []error {
	var errs []error
	for name, spec := range map[string]string{"cron.autosave": c.Autosave, "cron.prune": c.Prune} {
		if spec == CronDisabled {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: invalid schedule %q: %w", name, spec, err))
		}
	}
	if err := positiveDuration("cron.idle_ttl", c.IdleTTL); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func positiveDuration(name, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("config: %s: invalid duration %q", name, v)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", s)
}

// Duration parses a validated duration field, falling back to def.
func Duration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
