package agent_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/dschat/internal/agent"
	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/provider"
)

func TestEventPayload(t *testing.T) {
	t.Parallel()

	metrics := &agent.TurnMetrics{
		Request:  ctxengine.TokenCount{Tokens: 12, Method: ctxengine.MethodHeuristic},
		Duration: 1500 * time.Millisecond,
		CostUSD:  0.01,
	}
	overflow := &provider.TransportError{StatusCode: 400, Body: "context_length_exceeded"}

	tests := []struct {
		name string
		ev   agent.Event
		want string
	}{
		{"notice", agent.Event{Type: agent.EventNotice, Text: "compressed"}, `{"notice":"compressed"}`},
		{"delta", agent.Event{Type: agent.EventDelta, Text: "Hi"}, `{"delta":"Hi"}`},
		{"done", agent.Event{Type: agent.EventDone}, `{"done":true}`},
		{"error", agent.Event{Type: agent.EventError, Err: errors.New("boom")}, `{"error":"boom"}`},
		{
			"context exceeded",
			agent.Event{Type: agent.EventError, Err: overflow, ContextExceeded: true},
			`{"error":"` + overflow.Error() + `","context_exceeded":true}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := json.Marshal(tt.ev.Payload())
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("payload = %s, want %s", got, tt.want)
			}
		})
	}

	p := agent.Event{Type: agent.EventStats, Stats: metrics}.Payload()
	if p.Stats == nil || p.Stats.DurationMS != 1500 || p.Stats.TokensLocal.Request != 12 || p.Stats.PromptTokens != nil {
		t.Errorf("stats payload = %+v", p.Stats)
	}
}
