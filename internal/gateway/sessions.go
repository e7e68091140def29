package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"
)

// idResponse answers create and branch.
type idResponse struct {
	ID string `json:"id"`
}

// historyResponse is the JSON form of GET /history.
type historyResponse struct {
	SessionID string                `json:"session_id"`
	Messages  []provider.LLMMessage `json:"messages"`
	Summary   string                `json:"summary"`
	Facts     string                `json:"facts"`
	CostUSD   float64               `json:"session_cost_usd"`
}

// handleClear wipes a session's history, summary and facts.
func (g *Gateway) handleClear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionParam(w, r, "session_id")
		if !ok {
			return
		}
		release, ok := g.store.Lanes().TryAcquire(id)
		if !ok {
			writeError(w, http.StatusConflict, errBusy.Error())
			return
		}
		defer release()

		sess := g.store.Get(r.Context(), id)
		sess.History.Clear()
		sess.ResetCost()
		if err := g.store.Save(r.Context(), id); err != nil {
			g.logger.Warn("session save failed after clear", "session", id, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleListSessions lists live and persisted sessions, newest first.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := g.store.List(r.Context())
		if err != nil {
			g.logger.Warn("session list failed", "error", err)
			writeError(w, http.StatusInternalServerError, "listing sessions failed")
			return
		}
		if list == nil {
			list = []memory.SessionInfo{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// handleCreateSession creates an empty session. The id comes from an
// optional JSON body {"id": ...}; an absent id is generated.
func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if body.ID != "" {
			if err := memory.ValidateSessionID(body.ID); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		sess, err := g.store.Create(r.Context(), body.ID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, idResponse{ID: sess.ID})
	}
}

// handleDeleteSession removes a session from memory and storage.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := memory.ValidateSessionID(id); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		release, ok := g.store.Lanes().TryAcquire(id)
		if !ok {
			writeError(w, http.StatusConflict, errBusy.Error())
			return
		}
		defer release()

		if err := g.store.Delete(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleBranch clones the first message_index+1 turns of parent_id into a
// new session.
func (g *Gateway) handleBranch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parent, ok := sessionParam(w, r, "parent_id")
		if !ok {
			return
		}
		q := r.URL.Query()
		index, err := strconv.Atoi(q.Get("message_index"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "message_index must be an integer")
			return
		}
		newID := q.Get("new_branch_id")
		if newID != "" {
			if err := memory.ValidateSessionID(newID); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		// Hold the parent's lane so the clone never sees a half-committed turn.
		release := g.store.Lanes().Acquire(parent)
		defer release()

		sess, err := g.store.Branch(r.Context(), parent, index, newID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, idResponse{ID: sess.ID})
	}
}

// handleHistory returns the visible state of a session.
func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionParam(w, r, "session_id")
		if !ok {
			return
		}
		sess, err := g.store.Peek(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		msgs := sess.History.Messages()
		if msgs == nil {
			msgs = []provider.LLMMessage{}
		}
		writeJSON(w, http.StatusOK, historyResponse{
			SessionID: id,
			Messages:  msgs,
			Summary:   sess.History.Summary(),
			Facts:     sess.History.Facts(),
			CostUSD:   sess.Cost(),
		})
	}
}

// sessionParam reads and validates a session id query parameter. A
// missing value means the default session.
func sessionParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := r.URL.Query().Get(name)
	if id == "" {
		id = memory.DefaultSessionID
	}
	if err := memory.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// writeStoreError maps session registry errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, memory.ErrSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, memory.ErrInvalidIndex), errors.Is(err, memory.ErrInvalidSessionID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
