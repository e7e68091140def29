package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public: probes must work without credentials.
	r.Get("/health", g.handleHealth())

	r.Group(func(r chi.Router) {
		if g.config.BearerToken != "" {
			r.Use(authMiddleware(g.config.BearerToken))
		}

		r.Get("/", g.handleIndex())
		if g.metrics != nil {
			r.Method(http.MethodGet, "/metrics", g.metrics)
		}

		r.Get("/stream", g.handleStream())
		r.Get("/ws", g.handleWebSocket())

		r.Post("/clear", g.handleClear())
		r.Post("/branch", g.handleBranch())
		r.Get("/history", g.handleHistory())

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", g.handleListSessions())
			r.Post("/", g.handleCreateSession())
			r.Delete("/{id}", g.handleDeleteSession())
		})
	})

	return r
}
