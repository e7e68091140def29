package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/dschat/internal/agent"
)

// handleWebSocket accepts a long-lived connection. Every JSON message from
// the client starts a turn; its events are written back as JSON objects in
// the same shape as the SSE payloads. Turns on one connection run one at a
// time. The session_id query parameter is the default for messages that
// carry none.
func (g *Gateway) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Debug("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		defaultID := r.URL.Query().Get("session_id")
		client := clientKey(r)

		for {
			var req turnRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
					g.logger.Debug("websocket read failed", "error", err)
				}
				return
			}
			if req.SessionID == "" {
				req.SessionID = defaultID
			}
			if err := g.serveWebSocketTurn(ctx, conn, client, req); err != nil {
				g.logger.Debug("websocket write failed", "session", req.SessionID, "error", err)
				return
			}
		}
	}
}

// serveWebSocketTurn runs one turn. A write failure cancels the turn and is
// returned; admission failures are reported to the client as error events.
func (g *Gateway) serveWebSocketTurn(ctx context.Context, conn *websocket.Conn, client string, req turnRequest) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	turn, err := g.startTurn(turnCtx, client, req)
	if err != nil {
		return wsjson.Write(ctx, conn, agent.Payload{Error: err.Error()})
	}
	return turn.consume(func(ev agent.Event) error {
		if err := wsjson.Write(ctx, conn, ev.Payload()); err != nil {
			cancel()
			return err
		}
		return nil
	})
}
