package ctxengine

import (
	"context"
	"slices"

	"github.com/flemzord/dschat/internal/provider"
)

// RunningSummary folds older turns into a running natural-language summary
// once the number of user turns exceeds the compression threshold. It backs
// both the "default" and "branching" strategy names.
type RunningSummary struct {
	name    string
	history History
	opts    Options

	compressed bool
}

var _ Strategy = (*RunningSummary)(nil)

// NewRunningSummary creates a running-summary strategy reported under name.
func NewRunningSummary(name string, h History, opts Options) *RunningSummary {
	return &RunningSummary{name: name, history: h, opts: opts.withDefaults()}
}

// Name implements Strategy.
func (s *RunningSummary) Name() string { return s.name }

// ShouldCompress reports whether compression is enabled and the number of
// user turns exceeds the threshold.
func (s *RunningSummary) ShouldCompress() bool {
	c := s.opts.Config.Compression
	return c.Enabled && countUserTurns(s.history.Messages()) > c.Threshold
}

// Prepare compresses the history when ShouldCompress holds.
//
// Everything except the last Keep turns is sent to the model together with
// any prior summary, which the model is asked to extend. The collected reply
// replaces the summary; an empty reply or a failed call leaves the summary
// as it was. Turns are truncated to Keep either way.
func (s *RunningSummary) Prepare(ctx context.Context, _, _ string) {
	s.compressed = false
	if !s.ShouldCompress() {
		return
	}

	keep := s.opts.Config.Compression.Keep
	msgs := s.history.Messages()
	if len(msgs) <= keep {
		return
	}
	old := msgs[:len(msgs)-keep]
	prior := s.history.Summary()

	req := make([]provider.LLMMessage, 0, len(old)+2)
	req = append(req, systemMessage(summarySystemPrompt))
	req = append(req, old...)
	req = append(req, provider.LLMMessage{Role: provider.MessageRoleUser, Content: summaryInstruction(prior)})

	s.compressed = true
	summary, err := Collect(ctx, s.opts.Provider, provider.CompletionRequest{
		Messages:    req,
		Temperature: provider.Float64(s.opts.Config.SummaryTemperature),
	})
	s.opts.observe(SideCallSummary, err)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.opts.Logger.Warn("summarization failed, keeping previous summary", "error", err)
		summary = ""
	}
	if summary == "" {
		summary = prior
	}

	s.history.ApplyCompression(summary, keep)
	s.opts.Logger.Debug("history compressed",
		"strategy", s.name,
		"dropped", len(old),
		"summary_len", len(summary),
	)
}

// BuildHistory returns [system] + [summary block, when non-empty] + all
// retained turns.
func (s *RunningSummary) BuildHistory(systemPrompt string) []provider.LLMMessage {
	turns := s.history.Messages()
	out := make([]provider.LLMMessage, 0, len(turns)+2)
	out = append(out, systemMessage(systemPrompt))
	if summary := s.history.Summary(); summary != "" {
		out = append(out, systemMessage(summaryBlockPrefix+summary))
	}
	return append(out, slices.Clone(turns)...)
}

// Notice reports compression when Prepare ran a summarization this turn.
func (s *RunningSummary) Notice() string {
	if s.compressed {
		return NoticeCompressing
	}
	return ""
}

func countUserTurns(msgs []provider.LLMMessage) int {
	n := 0
	for i := range msgs {
		if msgs[i].Role == provider.MessageRoleUser {
			n++
		}
	}
	return n
}
