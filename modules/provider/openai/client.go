package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/dschat/internal/provider"
)

// maxResponseSize is the maximum response body size (10 MB).
// Protects against OOM from malformed or huge responses.
const maxResponseSize = 10 * 1024 * 1024

// streamChannelBuffer is the buffer size for the streaming channel.
const streamChannelBuffer = 64

const chatCompletionsPath = "/chat/completions"

// buildChatRequest creates a Chat Completions request from a provider
// CompletionRequest, merging request-level overrides with config defaults.
func (p *Provider) buildChatRequest(req provider.CompletionRequest, stream bool) chatRequest {
	cr := chatRequest{
		Model:    p.config.Model,
		Messages: toMessages(req.Messages),
		Stream:   stream,
	}

	// Request-level overrides take precedence over config defaults.
	switch {
	case req.MaxTokens > 0:
		cr.MaxTokens = req.MaxTokens
	case p.config.MaxTokens > 0:
		cr.MaxTokens = p.config.MaxTokens
	}

	switch {
	case req.Temperature != nil:
		cr.Temperature = req.Temperature
	case p.config.Temperature != nil:
		cr.Temperature = p.config.Temperature
	}

	switch {
	case req.TopP != nil:
		cr.TopP = req.TopP
	case p.config.TopP != nil:
		cr.TopP = p.config.TopP
	}

	if p.config.Kind == KindDeepSeek {
		cr.FrequencyPenalty = p.config.FrequencyPenalty
		cr.PresencePenalty = p.config.PresencePenalty
	}

	if len(req.Stop) > 0 {
		cr.Stop = req.Stop
	}

	if stream {
		cr.StreamOptions = &streamOpts{IncludeUsage: true}
	}

	return cr
}

// newHTTPRequest creates an authenticated POST request.
func (p *Provider) newHTTPRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	return httpReq, nil
}

// Complete sends a non-streaming completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	httpReq, err := p.newHTTPRequest(ctx, chatCompletionsPath, p.buildChatRequest(req, false))
	if err != nil {
		return provider.CompletionResponse{}, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return provider.CompletionResponse{}, mapConnectionError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return provider.CompletionResponse{}, mapConnectionError(ctx, err)
	}
	if httpErr := mapHTTPError(resp.StatusCode, body); httpErr != nil {
		return provider.CompletionResponse{}, httpErr
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("%w: %w", provider.ErrMalformedEvent, err)
	}
	return fromResponse(&cr), nil
}

// Stream sends a streaming completion request and returns a channel of chunks.
// Connection and status errors are returned directly. Mid-stream errors are
// delivered via StreamChunk.Err; unparseable frames are logged and skipped.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	ctx, span := p.tracer.Start(ctx, "provider.stream", trace.WithAttributes(
		attribute.String("provider.kind", p.config.Kind),
		attribute.String("provider.model", p.config.Model),
		attribute.Int("request.messages", len(req.Messages)),
	))

	fail := func(err error) (<-chan provider.StreamChunk, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	httpReq, err := p.newHTTPRequest(ctx, chatCompletionsPath, p.buildChatRequest(req, true))
	if err != nil {
		return fail(err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return fail(mapConnectionError(ctx, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return fail(mapHTTPError(resp.StatusCode, body))
	}

	ch := make(chan provider.StreamChunk, streamChannelBuffer)
	go func() {
		defer span.End()
		p.readStream(ctx, resp.Body, ch)
	}()

	return ch, nil
}
