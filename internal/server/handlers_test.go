package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tradewind-ai/tradewind/internal/domain"
	"github.com/tradewind-ai/tradewind/internal/orchestrator"
	"github.com/tradewind-ai/tradewind/internal/provider"
	"github.com/tradewind-ai/tradewind/internal/storage/memory"
	"github.com/tradewind-ai/tradewind/internal/tools"
	"github.com/tradewind-ai/tradewind/internal/validate"
)

// stubCompleter answers every call with fixed text.
type stubCompleter struct {
	name    string
	content string
}

func (s *stubCompleter) Name() string { return s.name }

func (s *stubCompleter) Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) domain.Completion {
	return domain.Completion{Success: true, Content: s.content, Model: s.name}
}

func (s *stubCompleter) CompleteStream(ctx context.Context, messages []domain.Message, onDelta func(string), opts domain.CompletionOptions) domain.Completion {
	if onDelta != nil {
		onDelta(s.content)
	}
	return domain.Completion{Success: true, Content: s.content, Model: s.name}
}

func (s *stubCompleter) Stats() provider.StatsSnapshot { return provider.StatsSnapshot{} }

// fakeToolService answers tools/list with one spot-price tool and tools/call
// with a fixed payload.
func fakeToolService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "tools/list":
			fmt.Fprint(w, `{"jsonrpc":"2.0","result":{"tools":[{"name":"get_spot_price","description":"spot price"}]}}`)
		case "tools/call":
			fmt.Fprint(w, `{"jsonrpc":"2.0","result":{"content":[{"type":"text","text":"{\"symbol\":\"BTC\",\"price\":\"100000\"}"}]}}`)
		default:
			fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32601,"message":"method not found"}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.Default()

	completers := map[string]provider.Completer{
		"deepseek": &stubCompleter{name: "deepseek", content: "你好，有什么可以帮你？"},
	}
	router := provider.NewRouter(completers, "deepseek", "", logger)

	toolSrv := fakeToolService(t)
	registry := tools.NewRegistry(map[string]string{"binance": toolSrv.URL}, tools.NewClient(toolSrv.Client()), logger)

	store := memory.New()
	orch := orchestrator.New(router, registry, validate.New(logger), store, logger)

	handlers := &Handlers{
		Orchestrator: orch,
		Provider:     router,
		Registry:     registry,
		Store:        store,
		Logger:       logger,
	}

	r := chi.NewRouter()
	handlers.Mount(r)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler := newTestRouter(t)
	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestChatEndpoint(t *testing.T) {
	handler := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]string{
		"sessionId": "s1",
		"message":   "你好",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		SessionID string `json:"sessionId"`
		Message   struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.SessionID != "s1" {
		t.Errorf("sessionId: got %q", result.SessionID)
	}
	if result.Message.Role != "assistant" || result.Message.Content == "" {
		t.Errorf("message: %+v", result.Message)
	}
}

func TestChatGeneratesSessionID(t *testing.T) {
	handler := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]string{"message": "你好"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var result struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.SessionID == "" {
		t.Error("expected a generated session id")
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	handler := newTestRouter(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]string{"sessionId": "s1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestChatStreamEmitsSSE(t *testing.T) {
	handler := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/chat/stream", map[string]string{
		"sessionId": "s1",
		"message":   "你好",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: got %q", ct)
	}
	body := rec.Body.String()
	for _, event := range []string{`"start"`, `"content"`, `"done"`} {
		if !strings.Contains(body, event) {
			t.Errorf("stream missing %s event: %s", event, body)
		}
	}
	if !strings.Contains(body, "data: ") {
		t.Errorf("not SSE framed: %s", body)
	}
}

func TestModelsAndSwitch(t *testing.T) {
	handler := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var models struct {
		Models []string `json:"models"`
		Mode   string   `json:"mode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &models); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if models.Mode != "auto" || len(models.Models) != 1 || models.Models[0] != "deepseek" {
		t.Errorf("models: %+v", models)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/model/switch", map[string]string{"model": "gpt-5"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown model should be 400, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/model/switch", map[string]string{"model": "deepseek"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"deepseek"`) {
		t.Errorf("mode not switched: %s", rec.Body.String())
	}
}

func TestStats(t *testing.T) {
	handler := newTestRouter(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var stats struct {
		Mode      string                     `json:"mode"`
		Providers map[string]json.RawMessage `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := stats.Providers["deepseek"]; !ok {
		t.Errorf("stats missing provider: %s", rec.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	handler := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]string{
		"sessionId": "s1",
		"message":   "你好",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/session/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session status %d", rec.Code)
	}
	var session struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(session.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(session.Messages))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"s1"`) {
		t.Errorf("sessions listing: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/session/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodDelete, "/api/session/s1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete should be 404, got %d", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	handler := newTestRouter(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/session/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestCallToolDirect(t *testing.T) {
	handler := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/tools/binance/get_spot_price", map[string]string{"symbol": "BTC"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || result.Data["price"] != "100000" {
		t.Errorf("tool result: %+v", result)
	}
}

func TestCallToolUnknownService(t *testing.T) {
	handler := newTestRouter(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/tools/unknown/get_spot_price", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}
