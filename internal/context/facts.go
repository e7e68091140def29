package ctxengine

import (
	"context"

	"github.com/flemzord/dschat/internal/provider"
)

// FactExtraction keeps a merged list of durable facts stated by the user
// and injects it into the system prompt, so constraints survive after the
// window slides past the turn that introduced them.
type FactExtraction struct {
	history History
	opts    Options

	extracted bool
}

var _ Strategy = (*FactExtraction)(nil)

// NewFactExtraction creates a fact-extraction strategy.
func NewFactExtraction(h History, opts Options) *FactExtraction {
	return &FactExtraction{history: h, opts: opts.withDefaults()}
}

// Name implements Strategy.
func (f *FactExtraction) Name() string { return StrategyFacts }

// Prepare extracts facts from the latest turn when it was written by the
// user. A non-empty reply replaces the stored facts wholesale: the model is
// told to return the full merged list.
func (f *FactExtraction) Prepare(ctx context.Context, _, _ string) {
	f.extracted = false
	msgs := f.history.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != provider.MessageRoleUser {
		return
	}
	last := msgs[len(msgs)-1].Content
	current := f.history.Facts()

	req := []provider.LLMMessage{systemMessage(factsSystemPrompt)}
	if current != "" {
		req = append(req, systemMessage(fmtFactsCurrent(current)))
	}
	req = append(req, provider.LLMMessage{
		Role:    provider.MessageRoleUser,
		Content: factsInstruction(last, current),
	})

	f.extracted = true
	facts, err := Collect(ctx, f.opts.Provider, provider.CompletionRequest{
		Messages:    req,
		Temperature: provider.Float64(f.opts.Config.FactsTemperature),
	})
	f.opts.observe(SideCallFacts, err)
	if err != nil {
		if ctx.Err() == nil {
			f.opts.Logger.Warn("fact extraction failed, keeping previous facts", "error", err)
		}
		return
	}
	if facts != "" {
		f.history.SetFacts(facts)
	}
}

// BuildHistory returns [system + facts block] + last WindowSize turns.
func (f *FactExtraction) BuildHistory(systemPrompt string) []provider.LLMMessage {
	if facts := f.history.Facts(); facts != "" {
		systemPrompt += factsBlockHeader + facts
	}
	turns := tail(f.history.Messages(), f.opts.Config.WindowSize)
	out := make([]provider.LLMMessage, 0, len(turns)+1)
	out = append(out, systemMessage(systemPrompt))
	return append(out, turns...)
}

// Notice reports extraction whenever Prepare issued the side call this turn.
func (f *FactExtraction) Notice() string {
	if f.extracted {
		return NoticeFacts
	}
	return ""
}
