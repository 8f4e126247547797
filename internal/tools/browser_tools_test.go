package tools_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/browserrpc"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

func TestBrowserToolsGotoRejectsDisallowedHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("rpc call should not have been issued for a disallowed host")
	}))
	defer srv.Close()
	client := browserrpc.New(browserrpc.Config{Endpoint: srv.URL, AllowedHosts: []string{"sam.gov"}})

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterBrowserTools(registry, client))

	result := registry.Call(context.Background(), tools.IdentBrowserGoto, mustJSON(t, map[string]any{
		"pageId": "page-1", "url": "https://evil.example/login",
	}))
	assert.False(t, result.OK)
	assert.Equal(t, "domain_not_allowed", string(result.ErrorCategory))
}

func TestBrowserToolsNewContextAndPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&env)
		w.Header().Set("Content-Type", "application/json")
		switch env.Method {
		case "new_context":
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": map[string]string{"contextId": "ctx-1"}})
		case "new_page":
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": map[string]string{"contextId": "ctx-1", "pageId": "page-1"}})
		}
	}))
	defer srv.Close()
	client := browserrpc.New(browserrpc.Config{Endpoint: srv.URL})

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterBrowserTools(registry, client))

	ctxResult := registry.Call(context.Background(), tools.IdentBrowserNewContext, mustJSON(t, map[string]any{}))
	require.True(t, ctxResult.OK)
	ctxRef := ctxResult.Result.(map[string]any)
	assert.Equal(t, "ctx-1", ctxRef["contextId"])

	pageResult := registry.Call(context.Background(), tools.IdentBrowserNewPage, mustJSON(t, map[string]any{"contextId": "ctx-1"}))
	require.True(t, pageResult.OK)
}

func TestBrowserToolsAreAllOperatorOnly(t *testing.T) {
	client := browserrpc.New(browserrpc.Config{Endpoint: "http://localhost"})
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterBrowserTools(registry, client))
	assert.Empty(t, registry.ReadTools())
	assert.Len(t, registry.OperatorTools(), 11)
}
