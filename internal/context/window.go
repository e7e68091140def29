package ctxengine

import (
	"context"

	"github.com/flemzord/dschat/internal/provider"
)

// Window sends the system prompt plus a strict trailing slice of turns.
// It never compresses and never injects facts.
type Window struct {
	history History
	size    int
}

var _ Strategy = (*Window)(nil)

// NewWindow creates a sliding-window strategy. size <= 0 uses
// DefaultWindowSize.
func NewWindow(h History, size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{history: h, size: size}
}

// Name implements Strategy.
func (w *Window) Name() string { return StrategyWindow }

// Prepare is a no-op.
func (w *Window) Prepare(context.Context, string, string) {}

// BuildHistory returns [system] + last size turns.
func (w *Window) BuildHistory(systemPrompt string) []provider.LLMMessage {
	turns := tail(w.history.Messages(), w.size)
	out := make([]provider.LLMMessage, 0, len(turns)+1)
	out = append(out, systemMessage(systemPrompt))
	return append(out, turns...)
}

// Notice always returns "".
func (w *Window) Notice() string { return "" }
