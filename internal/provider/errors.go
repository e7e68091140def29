package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for provider operations.
var (
	// ErrTransport matches every TransportError.
	ErrTransport = errors.New("transport error")

	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrMalformedEvent marks an upstream stream frame that could not be parsed.
	// Readers log and skip such frames; it never terminates a stream.
	ErrMalformedEvent = errors.New("malformed upstream event")
)

// TransportError describes a failed call to the remote service: a non-2xx
// status, a network failure, or a timeout. StatusCode is 0 for failures
// that never produced a response.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("transport error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets callers classify the failure with errors.Is against the package
// sentinels without inspecting the status code themselves.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrContextLength:
		return IsContextLengthBody(e.Body)
	case ErrRateLimit:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrProviderDown:
		return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsContextLengthBody reports whether an upstream error body describes a
// context-window overflow. Providers word this differently, so the match
// is a case-insensitive keyword heuristic.
func IsContextLengthBody(body string) bool {
	b := strings.ToLower(body)
	switch {
	case strings.Contains(b, "context_length"):
		return true
	case strings.Contains(b, "context") && strings.Contains(b, "length"):
		return true
	case strings.Contains(b, "context") && strings.Contains(b, "window"):
		return true
	case strings.Contains(b, "tokens") && strings.Contains(b, "limit"):
		return true
	}
	return false
}

// IsContextLength reports whether err is (or wraps) a context-length failure.
func IsContextLength(err error) bool {
	return errors.Is(err, ErrContextLength)
}

// IsRetryable reports whether the error is transient and the request
// can be retried after a delay.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrContextLength) {
		return false
	}
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
