// Package agent runs conversational turns: it records the user input,
// lets the selected context strategy shape the request, streams the
// model's reply, and commits the result to the session history together
// with token and cost accounting.
package agent

import (
	"time"

	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/provider"
)

// EventType identifies the kind of turn event.
type EventType string

// EventType constants for turn events. A turn emits an optional notice,
// any number of deltas, one stats event, and then exactly one of done or
// error.
const (
	EventNotice EventType = "notice"
	EventDelta  EventType = "delta"
	EventStats  EventType = "stats"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Event is a single event emitted while a turn runs.
type Event struct {
	Type EventType

	// Text carries the notice or delta text.
	Text string

	// Stats is set on EventStats.
	Stats *TurnMetrics

	// Err is set on EventError.
	Err error

	// ContextExceeded is set on EventError when the upstream rejected the
	// request because it overflowed the model's context window.
	ContextExceeded bool
}

// Terminal reports whether the event ends the turn.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// TurnMetrics is the accounting record of the most recent turn of a
// session. It is never persisted.
type TurnMetrics struct {
	Strategy string

	// Local counts: the request-only list (system + this user turn), the
	// full history list actually sent, and the committed reply.
	Request  ctxengine.TokenCount
	History  ctxengine.TokenCount
	Response ctxengine.TokenCount

	Duration time.Duration

	// Usage is the upstream-reported usage, nil when the stream carried none.
	Usage *provider.TokenUsage

	// CostUSD is derived from Usage when present, otherwise from the local
	// History/Response counts.
	CostUSD        float64
	SessionCostUSD float64
}

// LocalTokens is the wire form of the local token counts.
type LocalTokens struct {
	Request        int              `json:"request"`
	RequestMethod  ctxengine.Method `json:"request_method"`
	History        int              `json:"history"`
	HistoryMethod  ctxengine.Method `json:"history_method"`
	Response       int              `json:"response"`
	ResponseMethod ctxengine.Method `json:"response_method"`
}

// Stats is the wire form of TurnMetrics shared by the web, WebSocket and
// MCP surfaces.
type Stats struct {
	TokensLocal      LocalTokens `json:"tokens_local"`
	DurationMS       int64       `json:"duration_ms"`
	PromptTokens     *int        `json:"prompt_tokens"`
	CompletionTokens *int        `json:"completion_tokens"`
	TotalTokens      *int        `json:"total_tokens"`
	CostUSD          float64     `json:"cost_usd"`
	SessionCostUSD   float64     `json:"session_cost_usd"`
}

// Wire converts the metrics to their JSON form. Upstream usage fields are
// null when the provider did not report them.
func (m TurnMetrics) Wire() Stats {
	s := Stats{
		TokensLocal: LocalTokens{
			Request:        m.Request.Tokens,
			RequestMethod:  m.Request.Method,
			History:        m.History.Tokens,
			HistoryMethod:  m.History.Method,
			Response:       m.Response.Tokens,
			ResponseMethod: m.Response.Method,
		},
		DurationMS:     m.Duration.Milliseconds(),
		CostUSD:        m.CostUSD,
		SessionCostUSD: m.SessionCostUSD,
	}
	if m.Usage != nil {
		p, c, t := m.Usage.PromptTokens, m.Usage.CompletionTokens, m.Usage.TotalTokens
		s.PromptTokens, s.CompletionTokens, s.TotalTokens = &p, &c, &t
	}
	return s
}

// Payload is the JSON object sent to web and WebSocket clients for one
// event. Exactly one of the content fields is set.
type Payload struct {
	Notice          string `json:"notice,omitempty"`
	Delta           string `json:"delta,omitempty"`
	Stats           *Stats `json:"stats,omitempty"`
	Done            bool   `json:"done,omitempty"`
	Error           string `json:"error,omitempty"`
	ContextExceeded bool   `json:"context_exceeded,omitempty"`
}

// Payload converts the event to its client form.
func (e Event) Payload() Payload {
	switch e.Type {
	case EventNotice:
		return Payload{Notice: e.Text}
	case EventDelta:
		return Payload{Delta: e.Text}
	case EventStats:
		if e.Stats == nil {
			return Payload{Stats: &Stats{}}
		}
		s := e.Stats.Wire()
		return Payload{Stats: &s}
	case EventError:
		return Payload{Error: ErrorText(e), ContextExceeded: e.ContextExceeded}
	default:
		return Payload{Done: true}
	}
}
