package tools_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/chatops"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

func TestChatToolsPostMessageAndRejectsUnlistedChannel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C_ALLOWED", "ts": "1.1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sc := slack.New("test-token", slack.OptionAPIURL(srv.URL+"/api/"))
	client := chatops.NewWithSlackClient(sc, "test-token", []string{"C_ALLOWED"}).WithAPIBaseURL(srv.URL + "/api/")

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterChatTools(registry, client))

	postResult := registry.Call(context.Background(), tools.IdentChatPostMessage, mustJSON(t, map[string]any{
		"channel": "C_ALLOWED", "text": "status update",
	}))
	require.True(t, postResult.OK)

	deniedResult := registry.Call(context.Background(), tools.IdentChatPostMessage, mustJSON(t, map[string]any{
		"channel": "C_OTHER", "text": "status update",
	}))
	assert.False(t, deniedResult.OK)
	assert.Equal(t, "channel_not_allowed", string(deniedResult.ErrorCategory))
}

func TestChatReadToolsAreSafeReads(t *testing.T) {
	sc := slack.New("test-token")
	client := chatops.NewWithSlackClient(sc, "test-token", nil)

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterChatTools(registry, client))

	readNames := make(map[tools.Ident]bool)
	for _, tool := range registry.ReadTools() {
		readNames[tool.Name] = true
	}
	assert.True(t, readNames[tools.IdentChatListRecentMessages])
	assert.True(t, readNames[tools.IdentChatGetThread])
	assert.True(t, readNames[tools.IdentChatGetUserInfo])
	assert.False(t, readNames[tools.IdentChatPostMessage])
	assert.False(t, readNames[tools.IdentChatCreateCanvas])
}
