package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/flemzord/dschat/internal/provider"
)

// maxErrorBody caps the body text kept on a TransportError.
const maxErrorBody = 4096

// mapHTTPError turns a non-2xx response into a provider.TransportError.
// The raw body is kept so callers can classify context-length failures;
// when it is a JSON error envelope the message is used instead.
func mapHTTPError(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
		if code, ok := apiErr.Error.Code.(string); ok && code != "" {
			msg = code + ": " + msg
		}
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return &provider.TransportError{StatusCode: statusCode, Body: msg}
}

// mapConnectionError wraps network failures and client timeouts in a
// TransportError. Cancellation of the caller's context passes through
// unchanged.
func mapConnectionError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return &provider.TransportError{Err: err}
}
