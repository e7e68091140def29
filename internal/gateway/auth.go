package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware validates a bearer token using constant-time comparison.
// Browsers cannot set headers on EventSource or WebSocket requests, so the
// token is also accepted as the access_token query parameter.
func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				presented = r.URL.Query().Get("access_token")
			}
			if presented == "" || !constantTimeEqual(presented, token) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
