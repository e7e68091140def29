package security

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(r *Redactor, level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	const secret = "configured-api-key"

	tests := []struct {
		name string
		log  func(*slog.Logger)
	}{
		{"message", func(l *slog.Logger) { l.Info("sending " + secret) }},
		{"attribute", func(l *slog.Logger) { l.Info("request", "key", secret) }},
		{"with attrs", func(l *slog.Logger) { l.With("api_key", secret).Info("request") }},
		{"group", func(l *slog.Logger) { l.WithGroup("provider").Info("request", "key", secret) }},
		{"nested group attr", func(l *slog.Logger) {
			l.Info("request", slog.Group("http", slog.String("auth", "Bearer "+secret)))
		}},
		{"error value", func(l *slog.Logger) {
			l.Warn("turn failed", "error", errors.New("401: bad key "+secret))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, buf := newTestLogger(NewRedactor(secret), slog.LevelDebug)
			tt.log(logger)

			out := buf.String()
			if strings.Contains(out, secret) {
				t.Errorf("secret leaked: %s", out)
			}
			if !strings.Contains(out, RedactPlaceholder) {
				t.Errorf("placeholder missing: %s", out)
			}
		})
	}
}

func TestRedactingHandler_LeavesPlainOutput(t *testing.T) {
	t.Parallel()

	logger, buf := newTestLogger(NewRedactor(), slog.LevelDebug)
	logger.Info("turn completed", "session", "main", "tokens", 42)

	out := buf.String()
	if strings.Contains(out, RedactPlaceholder) {
		t.Errorf("unexpected redaction: %s", out)
	}
	if !strings.Contains(out, "session=main") || !strings.Contains(out, "tokens=42") {
		t.Errorf("attributes missing: %s", out)
	}
}

func TestRedactingHandler_Enabled(t *testing.T) {
	t.Parallel()

	inner := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewRedactingHandler(inner, NewRedactor())

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug enabled with warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled with warn level")
	}
}
