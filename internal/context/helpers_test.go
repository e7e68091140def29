package ctxengine_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/dschat/internal/provider"
	"github.com/flemzord/dschat/internal/provider/providertest"
)

// fakeHistory implements ctxengine.History over a plain slice.
type fakeHistory struct {
	turns   []provider.LLMMessage
	summary string
	facts   string

	compressions int
}

func (h *fakeHistory) Messages() []provider.LLMMessage {
	out := make([]provider.LLMMessage, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *fakeHistory) Summary() string   { return h.summary }
func (h *fakeHistory) Facts() string     { return h.facts }
func (h *fakeHistory) SetFacts(f string) { h.facts = f }

func (h *fakeHistory) add(role provider.MessageRole, content string) {
	h.turns = append(h.turns, provider.LLMMessage{Role: role, Content: content})
}

func (h *fakeHistory) ApplyCompression(summary string, keep int) {
	if len(h.turns) <= keep {
		return
	}
	h.compressions++
	h.summary = summary
	h.turns = append([]provider.LLMMessage(nil), h.turns[len(h.turns)-keep:]...)
}

// newHistory creates n alternating user/assistant turns starting with user.
func newHistory(n int) *fakeHistory {
	h := &fakeHistory{}
	for i := range n {
		role := provider.MessageRoleUser
		if i%2 == 1 {
			role = provider.MessageRoleAssistant
		}
		h.add(role, fmt.Sprintf("msg-%d", i))
	}
	return h
}

// replyProvider streams reply for every call.
func replyProvider(reply ...string) *providertest.MockProvider {
	return &providertest.MockProvider{StreamFunc: providertest.TextStream(reply...)}
}

// failingProvider fails every stream call with err.
func failingProvider(err error) *providertest.MockProvider {
	return &providertest.MockProvider{
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return nil, err
		},
	}
}

var errUpstream = errors.New("upstream down")
