package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gin-contrib/sse"

	"github.com/flemzord/dschat/internal/agent"
)

// handleStream runs one turn and streams its events as server-sent events.
// Each frame carries the event type as its name and the JSON payload as
// data, so clients may listen per type or read data alone.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := turnFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		turn, err := g.startTurn(r.Context(), clientKey(r), req)
		if err != nil {
			writeError(w, admissionStatus(err), err.Error())
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		err = turn.consume(func(ev agent.Event) error {
			data, err := json.Marshal(ev.Payload())
			if err != nil {
				return err
			}
			if err := sse.Encode(w, sse.Event{Event: string(ev.Type), Data: string(data)}); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		})
		if err != nil {
			g.logger.Debug("sse client went away", "session", req.SessionID, "error", err)
		}
	}
}
