package ctxengine

import (
	"context"
	"strings"

	"github.com/flemzord/dschat/internal/provider"
)

// Collect runs req in streaming mode and returns the concatenated,
// whitespace-trimmed text. Chunks are never forwarded anywhere; side calls
// use this to reuse the streaming path without surfacing output.
func Collect(ctx context.Context, p provider.Provider, req provider.CompletionRequest) (string, error) {
	ch, err := p.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			// Drain so the producer goroutine can exit.
			for range ch {
			}
			return "", chunk.Err
		}
		b.WriteString(chunk.Content)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
