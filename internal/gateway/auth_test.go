package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		target string
		want   int
	}{
		{"missing", "", "/stream", http.StatusUnauthorized},
		{"wrong bearer", "Bearer nope", "/stream", http.StatusUnauthorized},
		{"valid bearer", "Bearer secret-token", "/stream", http.StatusOK},
		{"basic scheme ignored", "Basic c2VjcmV0LXRva2Vu", "/stream", http.StatusUnauthorized},
		{"query token", "", "/stream?access_token=secret-token", http.StatusOK},
		{"wrong query token", "", "/stream?access_token=secret", http.StatusUnauthorized},
	}

	handler := authMiddleware("secret-token")(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRouter_AuthScope(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestGateway(t, Config{BearerToken: "secret-token"})
	h := g.Handler()

	for path, want := range map[string]int{
		"/health":   http.StatusOK,
		"/sessions": http.StatusUnauthorized,
		"/":         http.StatusUnauthorized,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != want {
			t.Errorf("GET %s = %d, want %d", path, rr.Code, want)
		}
	}
}
