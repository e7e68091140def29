// Package ctxengine implements conversation context management: token
// accounting and the strategies that decide which part of a session's
// history is sent to the model on each turn.
package ctxengine

import (
	"context"
	"log/slog"
)

// Default tuning values.
const (
	DefaultWindowSize           = 10
	DefaultCompressionThreshold = 10
	DefaultCompressionKeep      = 4
	DefaultSummaryTemperature   = 0.3
	DefaultFactsTemperature     = 0.1
)

// CompressionConfig controls the running-summary strategy.
type CompressionConfig struct {
	// Enabled turns compression on. When false RunningSummary only
	// replays the stored summary and all retained turns.
	Enabled bool

	// Threshold is the number of user turns that must be exceeded before
	// a compression pass runs.
	Threshold int

	// Keep is the number of most recent turns retained verbatim after
	// compression.
	Keep int
}

// Config holds the tuning knobs for the context strategies.
type Config struct {
	// WindowSize is the number of trailing turns sent by the window and
	// facts strategies.
	WindowSize int

	Compression CompressionConfig

	// SummaryTemperature and FactsTemperature are the sampling
	// temperatures of the summarization and extraction side calls.
	SummaryTemperature float64
	FactsTemperature   float64
}

// DefaultConfig returns the built-in configuration with compression on.
func DefaultConfig() Config {
	return Config{Compression: CompressionConfig{Enabled: true}}.withDefaults()
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg Config) withDefaults() Config {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Compression.Threshold <= 0 {
		cfg.Compression.Threshold = DefaultCompressionThreshold
	}
	if cfg.Compression.Keep <= 0 {
		cfg.Compression.Keep = DefaultCompressionKeep
	}
	if cfg.SummaryTemperature == 0 {
		cfg.SummaryTemperature = DefaultSummaryTemperature
	}
	if cfg.FactsTemperature == 0 {
		cfg.FactsTemperature = DefaultFactsTemperature
	}
	return cfg
}

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
