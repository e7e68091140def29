// Package telemetry exposes dschat's prometheus collectors and configures
// OpenTelemetry trace export.
package telemetry

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/dschat/internal/agent"
	"github.com/flemzord/dschat/internal/provider"
)

// Turn outcomes used as the outcome label.
const (
	OutcomeOK              = "ok"
	OutcomeError           = "error"
	OutcomeCancelled       = "cancelled"
	OutcomeContextExceeded = "context_exceeded"
)

// Metrics holds the process collectors on a private registry. It
// implements agent.Observer and is safe for concurrent use.
type Metrics struct {
	registry  *prometheus.Registry
	turns     *prometheus.CounterVec
	duration  prometheus.Histogram
	tokens    *prometheus.CounterVec
	cost      prometheus.Counter
	sideCalls *prometheus.CounterVec
}

var _ agent.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors. activeSessions reports the number
// of live sessions for the dschat_active_sessions gauge; nil reports zero.
func NewMetrics(activeSessions func() int) *Metrics {
	if activeSessions == nil {
		activeSessions = func() int { return 0 }
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dschat_turns_total",
			Help: "Completed turns by context strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dschat_turn_duration_seconds",
			Help:    "Wall time from turn start to the terminal event.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dschat_tokens_total",
			Help: "Tokens by kind: prompt and completion when reported upstream, local_request and local_response otherwise.",
		}, []string{"kind"}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dschat_cost_usd_total",
			Help: "Estimated spend in US dollars.",
		}),
		sideCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dschat_side_calls_total",
			Help: "Summarization, fact extraction and title calls by outcome.",
		}, []string{"kind", "outcome"}),
	}

	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dschat_active_sessions",
		Help: "Sessions currently held in memory.",
	}, func() float64 { return float64(activeSessions()) })

	m.registry.MustRegister(m.turns, m.duration, m.tokens, m.cost, m.sideCalls, active)
	return m
}

// TurnCompleted records one finished turn.
func (m *Metrics) TurnCompleted(strategy string, tm agent.TurnMetrics, err error) {
	m.turns.WithLabelValues(strategy, Outcome(err)).Inc()
	m.duration.Observe(tm.Duration.Seconds())
	m.cost.Add(tm.CostUSD)

	if tm.Usage != nil {
		m.tokens.WithLabelValues("prompt").Add(float64(tm.Usage.PromptTokens))
		m.tokens.WithLabelValues("completion").Add(float64(tm.Usage.CompletionTokens))
		return
	}
	m.tokens.WithLabelValues("local_request").Add(float64(tm.Request.Tokens))
	m.tokens.WithLabelValues("local_response").Add(float64(tm.Response.Tokens))
}

// SideCall records one auxiliary upstream call.
func (m *Metrics) SideCall(kind string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.sideCalls.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Outcome classifies a turn error into an outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case provider.IsContextLength(err):
		return OutcomeContextExceeded
	default:
		return OutcomeError
	}
}
