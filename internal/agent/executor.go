package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"
)

// tracerName identifies spans created by this package.
const tracerName = "github.com/flemzord/dschat/internal/agent"

// SessionSaver persists a session after its turn has been committed.
// *memory.Store satisfies it.
type SessionSaver interface {
	Save(ctx context.Context, id string) error
}

// Observer receives turn and side-call outcomes, typically to feed
// metrics. Implementations must be safe for concurrent use.
type Observer interface {
	TurnCompleted(strategy string, m TurnMetrics, err error)
	SideCall(kind string, err error)
}

// Options configures an Executor.
type Options struct {
	Provider provider.Provider

	// Counter counts tokens. Nil uses a heuristic-only counter.
	Counter *ctxengine.TokenCounter

	Pricing provider.Pricing

	// Strategy tunes the context strategies built for every turn.
	Strategy ctxengine.Config

	Config Config

	// TitlePolicy decides when to generate a session title. Nil uses
	// TitleAtTurns over Config.TitleTurns.
	TitlePolicy TitlePolicy

	// Saver persists sessions after each turn. Nil disables persistence.
	Saver SessionSaver

	Observer Observer
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Executor runs turns. It is safe for concurrent use across sessions;
// turns of one session must be serialized by the caller.
type Executor struct {
	provider provider.Provider
	counter  *ctxengine.TokenCounter
	pricing  provider.Pricing
	strategy ctxengine.Config
	config   Config
	title    TitlePolicy
	saver    SessionSaver
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer

	// now is injectable for deterministic testing.
	now func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(opts Options) *Executor {
	cfg := opts.Config.withDefaults()
	e := &Executor{
		provider: opts.Provider,
		counter:  opts.Counter,
		pricing:  opts.Pricing,
		strategy: opts.Strategy,
		config:   cfg,
		title:    opts.TitlePolicy,
		saver:    opts.Saver,
		observer: opts.Observer,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		now:      time.Now,
	}
	if e.counter == nil {
		e.counter = ctxengine.NewTokenCounter()
	}
	if e.title == nil {
		e.title = TitleAtTurns(cfg.TitleTurns...)
	}
	if e.logger == nil {
		e.logger = slog.New(nopHandler{})
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// Counter returns the token counter used for accounting.
func (e *Executor) Counter() *ctxengine.TokenCounter { return e.counter }

// SystemPrompt returns the configured system prompt.
func (e *Executor) SystemPrompt() string { return e.config.SystemPrompt }

// RunTurn runs one turn of sess and streams its events. The returned
// channel is closed after the terminal event.
//
// The user text is recorded before anything else, and whatever reply text
// was received is committed when the stream ends for any reason: success,
// upstream failure, or cancellation of ctx. Consumers that stop reading
// early must cancel ctx so the turn can unwind.
func (e *Executor) RunTurn(ctx context.Context, sess *memory.Session, text, strategyName string, params provider.SamplingParams) <-chan Event {
	ch := make(chan Event, defaultEventBuffer)
	go func() {
		defer close(ch)
		e.runTurn(ctx, ch, sess, text, strategyName, params)
	}()
	return ch
}

// turn carries the state shared between the streaming phase and the
// finalizer of a single turn.
type turn struct {
	sess     *memory.Session
	strategy string
	model    string
	start    time.Time

	request ctxengine.TokenCount
	history ctxengine.TokenCount

	// opened is set once the upstream accepted the request.
	opened bool

	reply strings.Builder
	usage *provider.TokenUsage
	err   error
}

func (e *Executor) runTurn(ctx context.Context, ch chan<- Event, sess *memory.Session, text, strategyName string, params provider.SamplingParams) {
	strat := ctxengine.New(strategyName, sess.History, ctxengine.Options{
		Provider: e.provider,
		Config:   e.strategy,
		Logger:   e.logger,
		OnSideCall: func(kind ctxengine.SideCall, err error) {
			e.observeSideCall(string(kind), err)
		},
	})

	ctx, span := e.tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("strategy", strat.Name()),
	))
	defer span.End()

	t := &turn{
		sess:     sess,
		strategy: strat.Name(),
		model:    e.provider.ModelName(),
		start:    e.now(),
	}
	defer e.finish(ctx, ch, span, t)

	sess.History.AddUser(text)

	system := e.config.SystemPrompt
	prepCtx, prepSpan := e.tracer.Start(ctx, "agent.prepare")
	strat.Prepare(prepCtx, system, text)
	prepSpan.End()

	if notice := strat.Notice(); notice != "" {
		if !send(ctx, ch, Event{Type: EventNotice, Text: notice}) {
			t.err = ctx.Err()
			return
		}
	}

	requestOnly := []provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: system},
		{Role: provider.MessageRoleUser, Content: text},
	}
	messages := strat.BuildHistory(system)
	t.request = e.counter.CountMessages(requestOnly, t.model)
	t.history = e.counter.CountMessages(messages, t.model)

	req := provider.CompletionRequest{
		Messages:  messages,
		MaxTokens: e.config.MaxTokens,
	}.WithSampling(params)

	stream, err := e.provider.Stream(ctx, req)
	if err != nil {
		t.err = err
		return
	}
	t.opened = true

	for chunk := range stream {
		if chunk.Err != nil {
			t.err = chunk.Err
			drain(stream)
			return
		}
		if chunk.Usage != nil {
			t.usage = chunk.Usage
		}
		if chunk.Content == "" {
			continue
		}
		t.reply.WriteString(chunk.Content)
		if !send(ctx, ch, Event{Type: EventDelta, Text: chunk.Content}) {
			t.err = ctx.Err()
			drain(stream)
			return
		}
	}
	if err := ctx.Err(); err != nil {
		t.err = err
	}
}

// finish is the turn finalizer. It always runs, commits any received
// reply text, reports metrics, optionally generates a title, persists the
// session, and emits the terminal event.
func (e *Executor) finish(ctx context.Context, ch chan<- Event, span trace.Span, t *turn) {
	h := t.sess.History

	reply := strings.TrimSpace(t.reply.String())
	if reply != "" {
		h.AddAssistant(reply)
	}

	m := TurnMetrics{
		Strategy: t.strategy,
		Request:  t.request,
		History:  t.history,
		Response: e.counter.CountText(reply, t.model),
		Duration: e.now().Sub(t.start),
		Usage:    t.usage,
	}
	if m.Request.Method == "" {
		m.Request.Method = ctxengine.MethodHeuristic
	}
	if m.History.Method == "" {
		m.History.Method = ctxengine.MethodHeuristic
	}
	// A request the upstream rejected is never billed.
	switch {
	case t.usage != nil:
		m.CostUSD = e.pricing.Cost(t.usage.PromptTokens, t.usage.CompletionTokens)
	case t.opened:
		m.CostUSD = e.pricing.Cost(m.History.Tokens, m.Response.Tokens)
	}
	m.SessionCostUSD = t.sess.AddCost(m.CostUSD)

	span.SetAttributes(
		attribute.Int("tokens.history", m.History.Tokens),
		attribute.Int("tokens.response", m.Response.Tokens),
		attribute.Float64("cost.usd", m.CostUSD),
	)

	// The commit steps below must survive cancellation of the turn.
	bg := context.WithoutCancel(ctx)

	send(ctx, ch, Event{Type: EventStats, Stats: &m})

	if t.err == nil && e.title(h) {
		e.retitle(bg, h)
	}

	if e.saver != nil {
		saveCtx, cancel := context.WithTimeout(bg, e.config.SaveTimeout)
		if err := e.saver.Save(saveCtx, t.sess.ID); err != nil {
			e.logger.Warn("session save failed", "session", t.sess.ID, "error", err)
		}
		cancel()
	}

	if e.observer != nil {
		e.observer.TurnCompleted(t.strategy, m, t.err)
	}

	if t.err != nil {
		span.RecordError(t.err)
		span.SetStatus(codes.Error, t.err.Error())
		e.logger.Warn("turn failed",
			"session", t.sess.ID,
			"strategy", t.strategy,
			"committed_chars", len(reply),
			"error", t.err,
		)
		send(ctx, ch, errorEvent(t.err))
		return
	}

	e.logger.Debug("turn completed",
		"session", t.sess.ID,
		"strategy", t.strategy,
		"duration", m.Duration,
		"cost_usd", m.CostUSD,
	)
	send(ctx, ch, Event{Type: EventDone})
}

// retitle runs the best-effort title side call. Failures are logged only.
func (e *Executor) retitle(ctx context.Context, h *memory.History) {
	ctx, cancel := context.WithTimeout(ctx, e.config.TitleTimeout)
	defer cancel()

	title, err := e.generateTitle(ctx, h)
	e.observeSideCall("title", err)
	if err != nil {
		e.logger.Warn("title generation failed", "error", err)
		return
	}
	if title != "" {
		h.SetSummary(title)
	}
}

func (e *Executor) observeSideCall(kind string, err error) {
	if e.observer != nil {
		e.observer.SideCall(kind, err)
	}
}

// errorEvent builds the terminal error event, flagging context overflows.
func errorEvent(err error) Event {
	ev := Event{Type: EventError, Err: err}
	if provider.IsContextLength(err) {
		ev.ContextExceeded = true
		ev.Err = fmt.Errorf("%s: %w", contextExceededPrefix, err)
	}
	return ev
}

// ErrorText renders a terminal error for end users.
func ErrorText(ev Event) string {
	if ev.Err == nil {
		return ""
	}
	var te *provider.TransportError
	if errors.As(ev.Err, &te) && te.StatusCode != 0 && !ev.ContextExceeded {
		return fmt.Sprintf("upstream returned status %d: %s", te.StatusCode, te.Body)
	}
	return ev.Err.Error()
}

// send delivers ev unless ctx is done. It reports whether ev was sent.
// After cancellation nobody is required to read, so events are dropped
// instead of blocking the finalizer.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		select {
		case ch <- ev:
			return true
		default:
			return false
		}
	}
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain empties a provider stream so its producer goroutine can exit.
func drain(ch <-chan provider.StreamChunk) {
	for range ch {
	}
}

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
