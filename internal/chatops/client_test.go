package chatops_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/chatops"
	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

func newTestClient(t *testing.T, mux *http.ServeMux, allowedChannels []string) *chatops.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	sc := slack.New("test-token", slack.OptionAPIURL(srv.URL+"/api/"))
	return chatops.NewWithSlackClient(sc, "test-token", allowedChannels).WithAPIBaseURL(srv.URL + "/api/")
}

func TestRequireAllowedChannelRejectsUnlistedChannel(t *testing.T) {
	mux := http.NewServeMux()
	client := newTestClient(t, mux, []string{"C_ALLOWED"})

	_, err := client.ListRecentMessages(context.Background(), "C_OTHER", 10)
	require.Error(t, err)
	var toolErr *toolerrors.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, toolerrors.KindChannelNotAllowed, toolErr.Kind)
}

func TestListRecentMessagesClipsLongText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"ts": "1.1", "user": "U1", "text": strings.Repeat("x", 2500)},
			},
		})
	})
	client := newTestClient(t, mux, nil)

	msgs, err := client.ListRecentMessages(context.Background(), "C1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasSuffix(msgs[0].Text, "…"))
	assert.LessOrEqual(t, len(msgs[0].Text), len(strings.Repeat("x", 2000)+"…"))
}

func TestPostMessageDefaultsEmptyText(t *testing.T) {
	mux := http.NewServeMux()
	var gotText string
	mux.HandleFunc("/api/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C1", "ts": "123.456"})
	})
	client := newTestClient(t, mux, nil)

	result, err := client.PostMessage(context.Background(), "C1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "C1", result.Channel)
	assert.Equal(t, "123.456", result.TS)
	assert.Equal(t, "(no text)", gotText)
}

func TestCreateCanvasRequiresTitleAndMarkdown(t *testing.T) {
	mux := http.NewServeMux()
	client := newTestClient(t, mux, nil)

	_, err := client.CreateCanvas(context.Background(), "C1", "", "body")
	assert.Error(t, err)
}

func TestCreateCanvasSucceeds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations.canvases.create", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "canvas_id": "F123"})
	})
	client := newTestClient(t, mux, nil)

	ref, err := client.CreateCanvas(context.Background(), "C1", "Status", "# hello")
	require.NoError(t, err)
	assert.Equal(t, "F123", ref.CanvasID)
	assert.Equal(t, "Status", ref.Title)
}

func TestCreateCanvasSurfacesSlackError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations.canvases.create", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	})
	client := newTestClient(t, mux, nil)

	_, err := client.CreateCanvas(context.Background(), "C1", "Status", "# hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestAddReactionNormalizesEmojiColons(t *testing.T) {
	mux := http.NewServeMux()
	var gotName string
	mux.HandleFunc("/api/reactions.add", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotName = r.FormValue("name")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	client := newTestClient(t, mux, nil)

	err := client.AddReaction(context.Background(), "C1", "123.456", ":eyes:")
	require.NoError(t, err)
	assert.Equal(t, "eyes", gotName)
}
