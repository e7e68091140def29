package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/dschat/internal/agent"
	"github.com/flemzord/dschat/internal/memory"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var c Config
	c.defaults()
	if c.Bind != "127.0.0.1:8080" || c.ReadTimeout != 30*time.Second || c.ShutdownTimeout != 10*time.Second {
		t.Errorf("defaults = %+v", c)
	}
	if c.WriteTimeout != 0 {
		t.Errorf("WriteTimeout = %v, want 0 for streaming", c.WriteTimeout)
	}
}

func TestStream_SSE(t *testing.T) {
	t.Parallel()

	g, store, mock := newTestGateway(t, Config{})
	srv := newTestServer(t, g)

	resp, err := http.Get(srv.URL + "/stream?" + url.Values{
		"session_id":  {"s1"},
		"message":     {"hi"},
		"strategy":    {"window"},
		"temperature": {"0.2"},
	}.Encode())
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"event:delta\ndata:{\"delta\":\"Hel\"}\n\n",
		"event:delta\ndata:{\"delta\":\"lo\"}\n\n",
		"event:stats\n",
		"event:done\ndata:{\"done\":true}\n\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("stream missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "event:stats") > strings.Index(text, "event:done") {
		t.Error("stats must precede done")
	}

	msgs := store.Get(context.Background(), "s1").History.Messages()
	if len(msgs) != 2 || msgs[0].Content != "hi" || msgs[1].Content != "Hello" {
		t.Errorf("history = %+v", msgs)
	}
	if temp := mock.LastRequest().Temperature; temp == nil || *temp != 0.2 {
		t.Errorf("temperature = %v, want 0.2", temp)
	}
}

func TestStream_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"empty message", "session_id=a&message=%20%20", http.StatusBadRequest},
		{"bad temperature", "message=hi&temperature=warm", http.StatusBadRequest},
		{"bad top_p", "message=hi&top_p=x", http.StatusBadRequest},
		{"bad session id", "message=hi&session_id=..%2Fetc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, _, mock := newTestGateway(t, Config{})
			rr := httptest.NewRecorder()
			g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream?"+tt.query, nil))
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if mock.Calls() != 0 {
				t.Error("rejected turn reached the upstream")
			}
		})
	}
}

func TestStream_BusySession(t *testing.T) {
	t.Parallel()

	g, store, _ := newTestGateway(t, Config{})
	release := store.Lanes().Acquire("busy")
	defer release()

	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream?session_id=busy&message=hi", nil))
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestStream_RateLimited(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestGateway(t, Config{TurnsPerMinute: 1})
	h := g.Handler()

	codes := make([]int, 2)
	for i := range codes {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream?message=hi", nil))
		codes[i] = rr.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestWebSocket_Turns(t *testing.T) {
	t.Parallel()

	g, store, _ := newTestGateway(t, Config{})
	srv := newTestServer(t, g)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?session_id=w1", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	readTurn := func() []agent.Payload {
		var out []agent.Payload
		for {
			var p agent.Payload
			if err := wsjson.Read(ctx, conn, &p); err != nil {
				t.Fatalf("Read: %v", err)
			}
			out = append(out, p)
			if p.Done || p.Error != "" {
				return out
			}
		}
	}

	if err := wsjson.Write(ctx, conn, turnRequest{Message: "hi"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := readTurn()
	if len(got) != 4 || got[0].Delta != "Hel" || got[1].Delta != "lo" || got[2].Stats == nil || !got[3].Done {
		t.Errorf("payloads = %+v", got)
	}

	// The connection stays usable; admission errors come back as events.
	if err := wsjson.Write(ctx, conn, turnRequest{Message: " "}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := readTurn(); len(got) != 1 || got[0].Error != errEmptyMessage.Error() {
		t.Errorf("payloads = %+v", got)
	}

	if n := store.Get(ctx, "w1").History.Len(); n != 2 {
		t.Errorf("history len = %d, want 2", n)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestSessions_CreateListDelete(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestGateway(t, Config{})
	h := g.Handler()

	do := func(method, target, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
		return rr
	}

	if rr := do(http.MethodPost, "/sessions", `{"id":"alpha"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create alpha = %d %s", rr.Code, rr.Body)
	}
	if rr := do(http.MethodPost, "/sessions", `{"id":"alpha"}`); rr.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d", rr.Code)
	}
	if rr := do(http.MethodPost, "/sessions", `{"id":"../x"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid id create = %d", rr.Code)
	}

	rr := do(http.MethodPost, "/sessions", "")
	var created idResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil || rr.Code != http.StatusCreated || created.ID == "" {
		t.Fatalf("create generated = %d %s", rr.Code, rr.Body)
	}

	rr = do(http.MethodGet, "/sessions", "")
	var list []memory.SessionInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("list = %+v", list)
	}

	if rr := do(http.MethodDelete, "/sessions/alpha", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rr.Code)
	}
	if rr := do(http.MethodDelete, "/sessions/alpha", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rr.Code)
	}
}

func TestBranchAndHistory(t *testing.T) {
	t.Parallel()

	g, store, _ := newTestGateway(t, Config{})
	seed(t, store, "p", "q1", "a1", "q2", "a2")
	h := g.Handler()

	post := func(target string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, target, nil))
		return rr
	}

	rr := post("/branch?parent_id=p&message_index=1&new_branch_id=b")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"id":"b"`) {
		t.Fatalf("branch = %d %s", rr.Code, rr.Body)
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/branch?parent_id=p&message_index=9", http.StatusBadRequest},
		{"/branch?parent_id=p&message_index=x", http.StatusBadRequest},
		{"/branch?parent_id=ghost&message_index=0", http.StatusNotFound},
		{"/branch?parent_id=p&message_index=0&new_branch_id=b", http.StatusConflict},
	}
	for _, tt := range tests {
		if rr := post(tt.target); rr.Code != tt.want {
			t.Errorf("POST %s = %d, want %d", tt.target, rr.Code, tt.want)
		}
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history?session_id=b", nil))
	var hist historyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Messages) != 2 || hist.Messages[1].Content != "a1" {
		t.Errorf("branch history = %+v", hist.Messages)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history?session_id=typo", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown history = %d, want 404", rr.Code)
	}
	if _, ok := store.Lookup("typo"); ok {
		t.Error("reading history registered an unknown session")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	g, store, _ := newTestGateway(t, Config{})
	seed(t, store, "c", "q1", "a1")
	store.Get(context.Background(), "c").History.SetSummary("old")

	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/clear?session_id=c", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("clear = %d %s", rr.Code, rr.Body)
	}
	h := store.Get(context.Background(), "c").History
	if h.Len() != 0 || h.Summary() != "" {
		t.Errorf("after clear len=%d summary=%q", h.Len(), h.Summary())
	}
}

func TestHealthIndexMetrics(t *testing.T) {
	t.Parallel()

	g, store, _ := newTestGateway(t, Config{})
	store.Get(context.Background(), "one")
	h := g.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Sessions != 1 || health.Version != "test" {
		t.Errorf("health = %+v", health)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !bytes.Contains(rr.Body.Bytes(), []byte("<title>dschat</title>")) {
		t.Error("index page not served")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "dschat_turns_total") {
		t.Errorf("metrics = %d %s", rr.Code, rr.Body)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestGateway(t, Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
