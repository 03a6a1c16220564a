package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"manualqa/internal/app"
	"manualqa/internal/config"
	"manualqa/internal/llm"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testOptions = Options{CORSOrigin: "*"}

// stubAnswerer mimics app.App: the empty query is rejected before err is
// consulted.
type stubAnswerer struct {
	answer string
	err    error
	chunks int
	asked  []string
}

func (s *stubAnswerer) Ask(_ context.Context, q string) (string, error) {
	if q == "" {
		return "", app.ErrEmptyQuery
	}
	s.asked = append(s.asked, q)
	return s.answer, s.err
}

func (s *stubAnswerer) Count() int { return s.chunks }

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQuery_OK(t *testing.T) {
	a := &stubAnswerer{answer: "Replace the brake fluid every two years."}
	rec := post(t, Handler(a, testOptions, testLogger), `{"query":"brake fluid?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp QueryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != a.answer {
		t.Fatalf("unexpected answer %q", resp.Answer)
	}
	if len(a.asked) != 1 || a.asked[0] != "brake fluid?" {
		t.Fatalf("unexpected queries %v", a.asked)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestQuery_EmptyQuery(t *testing.T) {
	for _, body := range []string{`{"query":""}`, `{}`, `{"question":"oil"}`} {
		t.Run(body, func(t *testing.T) {
			a := &stubAnswerer{answer: "unused"}
			rec := post(t, Handler(a, testOptions, testLogger), body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Query cannot be empty"}` {
				t.Fatalf("unexpected body %s", got)
			}
			if len(a.asked) != 0 {
				t.Fatal("empty query must not reach retrieval")
			}
		})
	}
}

func TestQuery_InvalidBody(t *testing.T) {
	for _, body := range []string{``, `not json`, `["query"]`, `{"query": 42}`} {
		t.Run(body, func(t *testing.T) {
			rec := post(t, Handler(&stubAnswerer{}, testOptions, testLogger), body)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rec.Code)
			}
			var resp errorBody
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Error == "" || resp.Message != msgInternal {
				t.Fatalf("unexpected body %+v", resp)
			}
		})
	}
}

func TestQuery_WhitespaceQueryIsAsked(t *testing.T) {
	a := &stubAnswerer{answer: "Could you rephrase the question?"}
	rec := post(t, Handler(a, testOptions, testLogger), `{"query":"   "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if len(a.asked) != 1 || a.asked[0] != "   " {
		t.Fatalf("whitespace query must reach Ask unchanged, got %q", a.asked)
	}
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"provider", fmt.Errorf("synthesize: %w", llm.ErrProvider), http.StatusBadGateway, msgProvider},
		{"timeout", fmt.Errorf("retrieve: %w", llm.ErrTimeout), http.StatusGatewayTimeout, msgTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, msgTimeout},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, msgInternal},
		{"not ready", app.ErrNotReady, http.StatusInternalServerError, msgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, Handler(&stubAnswerer{err: tt.err}, testOptions, testLogger), `{"query":"oil"}`)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var resp errorBody
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Message != tt.message || resp.Error != tt.err.Error() {
				t.Fatalf("unexpected body %+v", resp)
			}
		})
	}
}

func TestQuery_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(&stubAnswerer{}, testOptions, testLogger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(&stubAnswerer{chunks: 42}, testOptions, testLogger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok","chunks":42}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestCORS(t *testing.T) {
	h := Handler(&stubAnswerer{answer: "ok"}, testOptions, testLogger)

	pre := httptest.NewRequest(http.MethodOptions, "/query", nil)
	pre.Header.Set("Origin", "https://manual.example.com")
	pre.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header on preflight")
	}

	rec = post(t, h, `{"query":"oil"}`)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header on POST")
	}
}

func TestChain_Order(t *testing.T) {
	var order []int
	mw := func(n int) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, n)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, 0)
	}), mw(1), mw(2), mw(3))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(order) != 4 || order[0] != 1 || order[1] != 2 || order[2] != 3 || order[3] != 0 {
		t.Fatalf("expected [1,2,3,0], got %v", order)
	}
}

func TestRecover_JSON(t *testing.T) {
	h := Recover(testLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp errorBody
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error != "boom" || resp.Message != msgInternal {
		t.Fatalf("unexpected body %+v", resp)
	}
}

func TestServer_RunAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := New(&stubAnswerer{answer: "ok", chunks: 1}, Options{Addr: addr, CORSOrigin: "*"}, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// slowAnswerer waits for the request context to end.
type slowAnswerer struct{}

func (slowAnswerer) Ask(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowAnswerer) Count() int { return 0 }

func TestQuery_RequestDeadline(t *testing.T) {
	h := Handler(slowAnswerer{}, Options{CORSOrigin: "*", RequestTimeout: 50 * time.Millisecond}, testLogger)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- post(t, h, `{"query":"oil"}`) }()

	select {
	case rec := <-done:
		if rec.Code != http.StatusGatewayTimeout {
			t.Fatalf("expected 504, got %d", rec.Code)
		}
		var resp errorBody
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Message != msgTimeout {
			t.Fatalf("unexpected body %+v", resp)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request deadline was not applied")
	}
}

func TestNew_WriteTimeoutCoversRequest(t *testing.T) {
	s := New(&stubAnswerer{}, Options{RequestTimeout: 9 * time.Minute}, testLogger)
	if got, want := s.srv.WriteTimeout, 9*time.Minute+writeSlack; got != want {
		t.Fatalf("expected write timeout %v, got %v", want, got)
	}
	if s.srv.WriteTimeout <= 9*time.Minute {
		t.Fatal("write timeout must outlast the request deadline")
	}
}

func TestRecover_AfterHeadersWritten(t *testing.T) {
	h := Recover(testLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "partial")
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected original status 202, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "partial" {
		t.Fatalf("no error payload may follow a started response, got %q", got)
	}
}

// openAIStub answers the embeddings and chat completion endpoints.
func openAIStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/embeddings":
			var req struct {
				Input string `json:"input"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			vec := []float64{1, 0, 0, 0}
			if strings.Contains(strings.ToLower(req.Input), "brake") {
				vec = []float64{0, 1, 0, 0}
			}
			b, _ := json.Marshal(vec)
			fmt.Fprintf(w, `{"object":"list","model":"text-embedding-ada-002","data":[{"object":"embedding","index":0,"embedding":%s}],"usage":{"prompt_tokens":1,"total_tokens":1}}`, b)
		case "/chat/completions":
			io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"Replace the brake fluid every two years."},"finish_reason":"stop"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQuery_EndToEnd(t *testing.T) {
	provider := openAIStub(t)
	dir := t.TempDir()
	doc := filepath.Join(dir, "manual.txt")
	text := "Engine oil should be changed every 10000 km.\nBrake fluid should be replaced every two years.\n"
	if err := os.WriteFile(doc, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFrom(map[string]string{
		"OPENAI_API_KEY":  "sk-test",
		"OPENAI_BASE_URL": provider.URL + "/",
		"REFERENCE_DOC":   doc,
		"INDEX_DIR":       filepath.Join(dir, "faiss_index"),
		"CHUNK_SIZE":      "60",
		"CHUNK_OVERLAP":   "10",
		"LLM_MAX_RETRIES": "0",
		"LLM_TIMEOUT":     "5s",
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	a, err := app.New(cfg, testLogger)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	h := Handler(a, Options{CORSOrigin: "*", RequestTimeout: cfg.RequestTimeout()}, testLogger)
	rec := post(t, h, `{"query":"When should I replace the brake fluid?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp QueryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.TrimSpace(resp.Answer) == "" {
		t.Fatal("expected a non-empty answer")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health healthBody
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Chunks == 0 {
		t.Fatalf("expected indexed chunks in health, got %+v", health)
	}
}
