package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewind-ai/tradewind/internal/domain"
)

// fakeService is a minimal JSON-RPC tool service.
type fakeService struct {
	t         *testing.T
	tools     []ToolSpec
	callCount atomic.Int64
	listCount atomic.Int64
	callBody  func(tool string, args map[string]any) any
	delay     time.Duration
}

func (f *fakeService) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"params"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

		if f.delay > 0 {
			time.Sleep(f.delay)
		}

		switch req.Method {
		case "tools/list":
			f.listCount.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{"tools": f.tools},
			})
		case "tools/call":
			f.callCount.Add(1)
			body := f.callBody(req.Params.Name, req.Params.Arguments)
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{
					"content": []map[string]any{{"type": "text", "text": body}},
				},
			})
		}
	}
}

func newFakeRegistry(t *testing.T, svc *fakeService, opts ...RegistryOption) *Registry {
	t.Helper()
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)
	return NewRegistry(map[string]string{"binance": srv.URL}, NewClient(srv.Client()), slog.Default(), opts...)
}

func spotPriceSpec() ToolSpec {
	return ToolSpec{
		Name:        "get_spot_price",
		Description: "Current spot price",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"symbol":{"type":"string"}},"required":["symbol"]}`),
	}
}

func TestDiscoverExposesCompositeNames(t *testing.T) {
	svc := &fakeService{t: t, tools: []ToolSpec{spotPriceSpec()}}
	registry := newFakeRegistry(t, svc)

	defs, status := registry.Discover(context.Background())
	require.Len(t, defs, 1)
	assert.Equal(t, "binance__get_spot_price", defs[0].Name)
	assert.Equal(t, []string{"binance"}, status.Available)
	assert.Empty(t, status.Unavailable)
}

func TestDiscoverCachesSchemas(t *testing.T) {
	svc := &fakeService{t: t, tools: []ToolSpec{spotPriceSpec()}}
	registry := newFakeRegistry(t, svc)

	registry.Discover(context.Background())
	registry.Discover(context.Background())
	assert.Equal(t, int64(1), svc.listCount.Load(), "second discovery should hit the cache")
}

func TestDiscoverDoesNotCacheEmptyListings(t *testing.T) {
	svc := &fakeService{t: t, tools: nil}
	registry := newFakeRegistry(t, svc)

	registry.Discover(context.Background())
	registry.Discover(context.Background())
	assert.Equal(t, int64(2), svc.listCount.Load(), "empty listings must be re-queried")
}

func TestDiscoverReportsUnavailableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	registry := NewRegistry(map[string]string{"binance": srv.URL}, NewClient(srv.Client()), slog.Default())
	defs, status := registry.Discover(context.Background())
	assert.Empty(t, defs)
	assert.Equal(t, []string{"binance"}, status.Unavailable)
}

func TestCallUnwrapsJSONString(t *testing.T) {
	svc := &fakeService{t: t, tools: []ToolSpec{spotPriceSpec()}, callBody: func(tool string, args map[string]any) any {
		return "{\"symbol\":\"BTCUSDT\",\n\"price\":\"67234.50\"}"
	}}
	registry := newFakeRegistry(t, svc)

	result, err := registry.Call(context.Background(), "binance", "get_spot_price", map[string]any{"symbol": "BTC"})
	require.NoError(t, err)
	require.True(t, result.Success)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok, "JSON-encoded string payload should be parsed one level deeper")
	assert.Equal(t, "67234.50", data["price"])
}

func TestCallCachesIdenticalQueries(t *testing.T) {
	svc := &fakeService{t: t, tools: []ToolSpec{spotPriceSpec()}, callBody: func(tool string, args map[string]any) any {
		return `{"price":"67234.50"}`
	}}
	registry := newFakeRegistry(t, svc)

	first, err := registry.Call(context.Background(), "binance", "get_spot_price", map[string]any{"symbol": "BTC"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := registry.Call(context.Background(), "binance", "get_spot_price", map[string]any{"symbol": "BTC"})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, int64(1), svc.callCount.Load(), "identical query should be served from cache")

	_, err = registry.Call(context.Background(), "binance", "get_spot_price", map[string]any{"symbol": "ETH"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), svc.callCount.Load(), "different arguments must bypass the cache")
}

func TestCallUnknownService(t *testing.T) {
	svc := &fakeService{t: t}
	registry := newFakeRegistry(t, svc)

	_, err := registry.Call(context.Background(), "nope", "get_spot_price", nil)
	require.ErrorIs(t, err, domain.ErrUnknownService)
}

func TestCallRejectsSchemaInvalidArguments(t *testing.T) {
	svc := &fakeService{t: t, tools: []ToolSpec{spotPriceSpec()}, callBody: func(tool string, args map[string]any) any {
		return `{}`
	}}
	registry := newFakeRegistry(t, svc)

	// Discovery compiles the schema validators.
	registry.Discover(context.Background())

	result, err := registry.Call(context.Background(), "binance", "get_spot_price", map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid arguments")
	assert.Equal(t, int64(0), svc.callCount.Load(), "invalid arguments must not reach the service")
}

func TestCallTimeoutBecomesFailedResult(t *testing.T) {
	svc := &fakeService{t: t, delay: 200 * time.Millisecond, callBody: func(tool string, args map[string]any) any {
		return `{}`
	}}
	registry := newFakeRegistry(t, svc, WithCallTimeout(20*time.Millisecond))

	result, err := registry.Call(context.Background(), "binance", "get_funding_rate", nil)
	require.NoError(t, err, "timeouts are reported inside the result")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestCallFailureNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": -32000, "message": "upstream down"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"content": []map[string]any{{"text": `{"price":"1.0"}`}}},
		})
	}))
	t.Cleanup(srv.Close)
	registry := NewRegistry(map[string]string{"binance": srv.URL}, NewClient(srv.Client()), slog.Default())

	result, err := registry.Call(context.Background(), "binance", "get_spot_price", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "upstream down", result.Error)

	fail.Store(false)
	result, err = registry.Call(context.Background(), "binance", "get_spot_price", nil)
	require.NoError(t, err)
	assert.True(t, result.Success, "failure must not poison the cache")
}

func TestParseName(t *testing.T) {
	service, tool, ok := ParseName("binance__get_spot_price")
	require.True(t, ok)
	assert.Equal(t, "binance", service)
	assert.Equal(t, "get_spot_price", tool)

	// Split happens at the first separator only.
	service, tool, ok = ParseName("binance__get__weird")
	require.True(t, ok)
	assert.Equal(t, "binance", service)
	assert.Equal(t, "get__weird", tool)

	_, _, ok = ParseName("noseparator")
	assert.False(t, ok)
}
