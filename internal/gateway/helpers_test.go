package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/dschat/internal/agent"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"
	"github.com/flemzord/dschat/internal/provider/providertest"
)

// newTestGateway wires a Gateway over an in-memory store and a mock
// upstream that streams "Hel", "lo".
func newTestGateway(t *testing.T, cfg Config) (*Gateway, *memory.Store, *providertest.MockProvider) {
	t.Helper()

	mock := &providertest.MockProvider{
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return providertest.Chunks(
				provider.StreamChunk{Content: "Hel"},
				provider.StreamChunk{Content: "lo"},
				provider.StreamChunk{FinishReason: provider.FinishReasonStop},
			), nil
		},
	}
	store := memory.NewStore(memory.StoreOptions{Capacity: 40})
	exec := agent.NewExecutor(agent.Options{
		Provider:    mock,
		TitlePolicy: agent.NeverTitle,
		Saver:       store,
	})
	g := New(Options{
		Config:   cfg,
		Store:    store,
		Executor: exec,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("dschat_turns_total 0\n"))
		}),
		Version: "test",
	})
	return g, store, mock
}

func newTestServer(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// seed fills session id with alternating user/assistant turns.
func seed(t *testing.T, store *memory.Store, id string, texts ...string) {
	t.Helper()
	h := store.Get(context.Background(), id).History
	for i, text := range texts {
		if i%2 == 0 {
			h.AddUser(text)
		} else {
			h.AddAssistant(text)
		}
	}
}
