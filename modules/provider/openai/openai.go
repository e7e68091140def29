// Package openai implements the streaming chat transport for OpenAI-compatible
// Chat Completions endpoints such as DeepSeek and Groq.
package openai

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/dschat/internal/provider"
)

const tracerName = "github.com/flemzord/dschat/modules/provider/openai"

// Compile-time interface guard.
var _ provider.Provider = (*Provider)(nil)

// Provider talks to one OpenAI-compatible endpoint.
type Provider struct {
	config       Config
	logger       *slog.Logger
	tracer       trace.Tracer
	client       *http.Client
	streamClient *http.Client
}

// Option customizes a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for skipped frames and failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithHTTPClient replaces both HTTP clients. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
		p.streamClient = c
	}
}

// New creates a Provider from cfg after filling defaults and validating.
func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg.defaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.parsedTimeout()
	p := &Provider{
		config: cfg,
		logger: slog.New(nopHandler{}),
		tracer: otel.Tracer(tracerName),
		// http.Client.Timeout is a hard deadline for the entire response
		// body, which would kill long-lived SSE streams. The streaming
		// client only bounds the wait for headers; the body is bounded by
		// the request context.
		client: &http.Client{Timeout: timeout},
		streamClient: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
		}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the configured provider kind.
func (p *Provider) Name() string { return p.config.Kind }

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string { return p.config.Model }

// Pricing returns the configured per-1K token prices.
func (p *Provider) Pricing() provider.Pricing { return p.config.Pricing }

// APIKey returns the configured key so log redaction can mask it.
func (p *Provider) APIKey() string { return p.config.APIKey }

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
