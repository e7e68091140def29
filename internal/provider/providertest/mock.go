// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/dschat/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset Complete/Stream funcs
// panic on call; unset name funcs return "mock".
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc  func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc    func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	NameFunc      func() string
	ModelNameFunc func() string

	mu            sync.Mutex
	CompleteCalls int
	StreamCalls   int
	Requests      []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// Name delegates to NameFunc.
func (m *MockProvider) Name() string {
	if m.NameFunc == nil {
		return "mock"
	}
	return m.NameFunc()
}

// ModelName delegates to ModelNameFunc.
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// Calls returns the number of Complete plus Stream calls.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls + m.StreamCalls
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockProvider) LastRequest() provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return provider.CompletionRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// Chunks returns a closed, pre-filled channel carrying chunks in order.
func Chunks(chunks ...provider.StreamChunk) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// TextStream returns a StreamFunc that streams parts as content chunks.
func TextStream(parts ...string) func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		chunks := make([]provider.StreamChunk, 0, len(parts))
		for _, p := range parts {
			chunks = append(chunks, provider.StreamChunk{Content: p})
		}
		return Chunks(chunks...), nil
	}
}

// Interface guard.
var _ provider.Provider = (*MockProvider)(nil)
