package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/flemzord/dschat/internal/provider"
)

// scannerBufferSize is the max token size for the SSE line scanner.
// Default bufio.Scanner limit is ~64 KiB which is too small for long
// content frames.
const scannerBufferSize = 1 * 1024 * 1024 // 1 MB

// sendChunk sends a StreamChunk on ch, respecting context cancellation.
// Returns false if the context was cancelled (caller should return).
func sendChunk(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// readStream reads an SSE stream from body and sends parsed chunks on ch.
// The channel is closed when the stream ends, either normally ([DONE] or
// EOF), on error, or when ctx is cancelled. body is always closed.
//
// Frames that are not valid JSON are logged and skipped. Content is
// forwarded in arrival order, one chunk per frame.
func (p *Provider) readStream(ctx context.Context, body io.ReadCloser, ch chan<- provider.StreamChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Close body on context cancellation to unblock the scanner.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)
	skipped := 0

	for scanner.Scan() {
		if ctx.Err() != nil {
			sendChunk(ctx, ch, provider.StreamChunk{Err: ctx.Err()})
			return
		}

		line := scanner.Text()

		// Only "data:" lines carry payloads; comments (":") and other
		// fields are ignored.
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var frame chatStreamChunk
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			skipped++
			p.logger.Warn("skipping upstream frame",
				"error", provider.ErrMalformedEvent,
				"cause", err,
				"skipped", skipped,
			)
			continue
		}

		chunk := provider.StreamChunk{}
		if frame.Usage != nil {
			u := fromUsage(*frame.Usage)
			chunk.Usage = &u
		}
		if len(frame.Choices) > 0 {
			choice := frame.Choices[0]
			chunk.Content = choice.Delta.Content
			chunk.FinishReason = mapFinishReason(choice.FinishReason)
		}
		if chunk.Content == "" && chunk.FinishReason == "" && chunk.Usage == nil {
			continue
		}
		if !sendChunk(ctx, ch, chunk) {
			return
		}
	}

	// If scanner stopped due to context cancellation (body closed), report context error.
	if ctx.Err() != nil {
		sendChunk(ctx, ch, provider.StreamChunk{Err: ctx.Err()})
		return
	}

	if err := scanner.Err(); err != nil {
		sendChunk(ctx, ch, provider.StreamChunk{Err: mapConnectionError(ctx, err)})
	}
}
