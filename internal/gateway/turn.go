package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/flemzord/dschat/internal/agent"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"
	"github.com/flemzord/dschat/internal/security"
)

// Turn admission errors.
var (
	errEmptyMessage = errors.New("message is required")
	errBusy         = errors.New("a turn is already running for this session")
)

// turnRequest is one turn invocation from a web client.
type turnRequest struct {
	SessionID   string   `json:"session_id"`
	Message     string   `json:"message"`
	Strategy    string   `json:"strategy"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// turnFromQuery reads a turnRequest from URL parameters.
func turnFromQuery(r *http.Request) (turnRequest, error) {
	q := r.URL.Query()
	req := turnRequest{
		SessionID: q.Get("session_id"),
		Message:   q.Get("message"),
		Strategy:  q.Get("strategy"),
	}
	var err error
	if req.Temperature, err = optionalFloat(q.Get("temperature")); err != nil {
		return req, fmt.Errorf("temperature: %w", err)
	}
	if req.TopP, err = optionalFloat(q.Get("top_p")); err != nil {
		return req, fmt.Errorf("top_p: %w", err)
	}
	return req, nil
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// runningTurn is an admitted turn. Its lane is held until every event has
// been consumed.
type runningTurn struct {
	events  <-chan agent.Event
	release func()
}

// consume passes each event to fn. After fn fails the remaining events
// are drained without delivery so the turn still commits before the lane
// is released. It returns the first fn error.
func (t runningTurn) consume(fn func(agent.Event) error) error {
	defer t.release()
	var firstErr error
	for ev := range t.events {
		if firstErr != nil {
			continue
		}
		firstErr = fn(ev)
	}
	return firstErr
}

// startTurn admits a turn: it validates the request, applies the client
// rate limit and takes the session lane without waiting.
func (g *Gateway) startTurn(ctx context.Context, client string, req turnRequest) (runningTurn, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return runningTurn{}, errEmptyMessage
	}
	id := req.SessionID
	if id == "" {
		id = memory.DefaultSessionID
	}
	if err := memory.ValidateSessionID(id); err != nil {
		return runningTurn{}, err
	}
	if err := g.limiter.Allow(client); err != nil {
		return runningTurn{}, err
	}

	release, ok := g.store.Lanes().TryAcquire(id)
	if !ok {
		return runningTurn{}, errBusy
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = g.strategy
	}
	sess := g.store.Get(ctx, id)
	params := provider.SamplingParams{Temperature: req.Temperature, TopP: req.TopP}

	g.logger.Debug("turn started", "session", id, "strategy", strategy)
	return runningTurn{
		events:  g.executor.RunTurn(ctx, sess, text, strategy, params),
		release: release,
	}, nil
}

// admissionStatus maps a startTurn error to an HTTP status.
func admissionStatus(err error) int {
	switch {
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errBusy):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// clientKey identifies the caller for rate limiting. RealIP has already
// replaced RemoteAddr when a proxy header was present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
