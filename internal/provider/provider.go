package provider

import "context"

// Provider is the interface for communicating with a remote chat-completion
// service. Concrete implementations live in separate packages
// (e.g., modules/provider/openai).
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err. The channel is closed when the
	// stream ends or ctx is cancelled.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// Name returns the provider identifier (e.g. "deepseek").
	Name() string

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}
