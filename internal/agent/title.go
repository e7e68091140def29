package agent

import (
	"context"
	"slices"
	"strings"

	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"
)

// TitlePolicy decides, after a turn has been committed, whether a title
// should be generated for the session. The title is stored as the
// session summary.
type TitlePolicy func(h *memory.History) bool

// TitleAtTurns generates a title when the history holds exactly one of
// the given turn counts and has no summary yet. The counts are a
// heuristic; sessions that are compressed get their summary from the
// running-summary strategy instead.
func TitleAtTurns(counts ...int) TitlePolicy {
	counts = slices.Clone(counts)
	return func(h *memory.History) bool {
		return h.Summary() == "" && slices.Contains(counts, h.Len())
	}
}

// NeverTitle disables title generation.
func NeverTitle(*memory.History) bool { return false }

const (
	titleSystemPrompt = "You are a helpful assistant that generates extremely concise titles."
	titleUserPrompt   = "Write a VERY SHORT title (3-5 words, no quotes, no trailing period) for this conversation that captures its main topic."
)

// generateTitle asks the model for a short title built from the first
// turns of h. It returns "" when the model produced nothing.
func (e *Executor) generateTitle(ctx context.Context, h *memory.History) (string, error) {
	msgs := h.Messages()
	if len(msgs) == 0 {
		return "", nil
	}
	if len(msgs) > DefaultTitleMaxTurns {
		msgs = msgs[:DefaultTitleMaxTurns]
	}

	req := make([]provider.LLMMessage, 0, len(msgs)+2)
	req = append(req, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: titleSystemPrompt})
	req = append(req, msgs...)
	req = append(req, provider.LLMMessage{Role: provider.MessageRoleUser, Content: titleUserPrompt})

	text, err := ctxengine.Collect(ctx, e.provider, provider.CompletionRequest{
		Messages:    req,
		Temperature: provider.Float64(titleTemperature),
	})
	if err != nil {
		return "", err
	}
	return cleanTitle(text), nil
}

// cleanTitle strips surrounding whitespace and quotes.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
