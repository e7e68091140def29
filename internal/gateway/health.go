package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime"`
	Sessions int     `json:"sessions"`
	Version  string  `json:"version,omitempty"`
}

// handleHealth reports liveness, uptime in seconds and the number of live
// sessions.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Sessions: g.store.Len(),
			Version:  g.version,
		})
	}
}
