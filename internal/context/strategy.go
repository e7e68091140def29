package ctxengine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/flemzord/dschat/internal/provider"
)

// Strategy names accepted by New.
const (
	StrategyDefault   = "default"
	StrategyWindow    = "window"
	StrategyFacts     = "facts"
	StrategyBranching = "branching"
)

// Names lists every strategy name New understands.
func Names() []string {
	return []string{StrategyDefault, StrategyWindow, StrategyFacts, StrategyBranching}
}

// Known reports whether name selects a strategy without falling back.
func Known(name string) bool {
	return slices.Contains(Names(), name)
}

// History is the view of a conversation a strategy works on. All durable
// strategy state (summary, facts) lives behind this interface.
type History interface {
	Messages() []provider.LLMMessage
	Summary() string
	Facts() string
	SetFacts(facts string)
	ApplyCompression(summary string, keep int)
}

// Strategy shapes the context sent to the model for one turn.
type Strategy interface {
	// Name returns the strategy name it was selected with.
	Name() string

	// Prepare runs any side calls (summarization, fact extraction) that
	// must complete before the main request is built. Side-call failures
	// are logged and treated as "no update"; Prepare never fails the turn.
	Prepare(ctx context.Context, systemPrompt, userInput string)

	// BuildHistory returns the ordered message list for the main request.
	BuildHistory(systemPrompt string) []provider.LLMMessage

	// Notice returns a short user-facing line when Prepare performed a
	// side call this turn, or "".
	Notice() string
}

// SideCall identifies the kind of auxiliary model call a strategy made.
type SideCall string

// Side call kinds.
const (
	SideCallSummary SideCall = "summary"
	SideCallFacts   SideCall = "facts"
)

// Options carries the collaborators shared by every strategy.
type Options struct {
	// Provider serves the summarization and extraction side calls.
	Provider provider.Provider

	Config Config
	Logger *slog.Logger

	// OnSideCall, when set, is invoked after every side call with its
	// outcome (nil error on success).
	OnSideCall func(kind SideCall, err error)
}

func (o Options) withDefaults() Options {
	o.Config = o.Config.withDefaults()
	if o.Logger == nil {
		o.Logger = slog.New(nopHandler{})
	}
	return o
}

func (o Options) observe(kind SideCall, err error) {
	if o.OnSideCall != nil {
		o.OnSideCall(kind, err)
	}
}

// New returns the strategy registered under name, bound to h. Unknown
// names fall back to the running-summary strategy.
func New(name string, h History, opts Options) Strategy {
	opts = opts.withDefaults()
	switch name {
	case StrategyWindow:
		return NewWindow(h, opts.Config.WindowSize)
	case StrategyFacts:
		return NewFactExtraction(h, opts)
	case StrategyBranching:
		return NewRunningSummary(StrategyBranching, h, opts)
	default:
		return NewRunningSummary(StrategyDefault, h, opts)
	}
}

// systemMessage is shorthand for a system-role message.
func systemMessage(content string) provider.LLMMessage {
	return provider.LLMMessage{Role: provider.MessageRoleSystem, Content: content}
}

// tail returns a copy of the last n messages of msgs.
func tail(msgs []provider.LLMMessage, n int) []provider.LLMMessage {
	if n < 0 {
		n = 0
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return slices.Clone(msgs)
}
