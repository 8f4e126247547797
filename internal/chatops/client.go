// Package chatops adapts the Chat platform tool category (spec section 6:
// Chat platform) onto slack-go/slack, grounded on the distilled agent's
// slack_read.py/slack_reply_tools.py/slack_web.py tool surface: thread
// history, posting (including threaded replies and DMs), canvases, and
// reactions, every read/write gated by a channel allowlist.
package chatops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

// Config constructs a Client against the Slack Web API.
type Config struct {
	Token           string
	AllowedChannels []string
}

// Client wraps slack.Client with the channel allowlist and the one
// operation (canvas creation) the SDK has no typed wrapper for.
type Client struct {
	slack           *slack.Client
	http            *http.Client
	apiBaseURL      string
	token           string
	allowedChannels map[string]struct{}
}

const defaultSlackAPIBaseURL = "https://slack.com/api/"

// New constructs a production Client against the real Slack Web API.
func New(cfg Config) *Client {
	return newClient(slack.New(cfg.Token), cfg.Token, cfg.AllowedChannels)
}

// NewWithSlackClient wraps an already-constructed slack.Client, for tests
// that point it at a fake server via slack.OptionAPIURL.
func NewWithSlackClient(sc *slack.Client, token string, allowedChannels []string) *Client {
	return newClient(sc, token, allowedChannels)
}

func newClient(sc *slack.Client, token string, allowedChannels []string) *Client {
	set := make(map[string]struct{}, len(allowedChannels))
	for _, ch := range allowedChannels {
		ch = strings.TrimSpace(ch)
		if ch != "" {
			set[ch] = struct{}{}
		}
	}
	return &Client{
		slack: sc, http: &http.Client{Timeout: 10 * time.Second},
		apiBaseURL: defaultSlackAPIBaseURL, token: token, allowedChannels: set,
	}
}

// WithAPIBaseURL overrides the raw-HTTP base URL used for operations the SDK
// has no typed wrapper for (currently just canvas creation), for tests that
// point it at a fake server. Returns the receiver for chaining.
func (c *Client) WithAPIBaseURL(url string) *Client {
	c.apiBaseURL = strings.TrimRight(url, "/") + "/"
	return c
}

// requireAllowedChannel mirrors _require_allowed_channel: when the allowlist
// is configured, only listed channels are accepted; an unconfigured
// allowlist defers entirely to the bot token's own Slack scopes.
func (c *Client) requireAllowedChannel(channel string) (string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "", toolerrors.New(toolerrors.KindChannelNotAllowed, "missing channel")
	}
	if len(c.allowedChannels) > 0 {
		if _, ok := c.allowedChannels[channel]; !ok {
			return "", toolerrors.Errorf(toolerrors.KindChannelNotAllowed, "channel %q is not in the allowed list", channel)
		}
	}
	return channel, nil
}

// Message is a single thread/history entry, clipped to 2000 chars the way
// slack_read.py does.
type Message struct {
	TS   string `json:"ts"`
	User string `json:"user,omitempty"`
	Text string `json:"text"`
}

func toMessages(msgs []slack.Message, limit int) []Message {
	out := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		if limit > 0 && i >= limit {
			break
		}
		out = append(out, Message{TS: m.Timestamp, User: m.User, Text: clip(m.Text, 2000)})
	}
	return out
}

// ListRecentMessages lists the most recent messages in channel, capped
// between 1 and 25 (slack_read.py's list_recent_messages).
func (c *Client) ListRecentMessages(ctx context.Context, channel string, limit int) ([]Message, error) {
	ch, err := c.requireAllowedChannel(channel)
	if err != nil {
		return nil, err
	}
	limit = boundLimit(limit, 15, 1, 25)

	resp, err := c.slack.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: ch,
		Limit:     limit,
	})
	if err != nil {
		return nil, toolerrors.NewWithCause(toolerrors.KindUpstream, "list recent messages failed", err)
	}
	return toMessages(resp.Messages, limit), nil
}

// GetThread lists replies in a thread, capped between 1 and 50
// (slack_read.py's get_thread).
func (c *Client) GetThread(ctx context.Context, channel, threadTS string, limit int) ([]Message, error) {
	ch, err := c.requireAllowedChannel(channel)
	if err != nil {
		return nil, err
	}
	threadTS = strings.TrimSpace(threadTS)
	if threadTS == "" {
		return nil, toolerrors.New(toolerrors.KindUpstream, "missing thread_ts")
	}
	limit = boundLimit(limit, 25, 1, 50)

	msgs, _, _, err := c.slack.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: ch,
		Timestamp: threadTS,
		Limit:     limit,
	})
	if err != nil {
		return nil, toolerrors.NewWithCause(toolerrors.KindUpstream, "get thread failed", err)
	}
	return toMessages(msgs, limit), nil
}

// UserInfo is the subset of a Slack user's profile the agent needs.
type UserInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"realName,omitempty"`
}

// GetUserInfo fetches a Slack user's profile.
func (c *Client) GetUserInfo(ctx context.Context, userID string) (UserInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserInfo{}, toolerrors.New(toolerrors.KindUpstream, "missing user id")
	}
	user, err := c.slack.GetUserInfoContext(ctx, userID)
	if err != nil {
		return UserInfo{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "get user info failed", err)
	}
	return UserInfo{ID: user.ID, Name: user.Name, RealName: user.RealName}, nil
}

// PostResult identifies a posted message.
type PostResult struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// PostMessage posts text to channel, optionally as a threaded reply when
// threadTS is non-empty (slack_reply_tools.py's post_summary/chat_post_message).
func (c *Client) PostMessage(ctx context.Context, channel, text, threadTS string) (PostResult, error) {
	ch, err := c.requireAllowedChannel(channel)
	if err != nil {
		return PostResult{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(no text)"
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false), slack.MsgOptionDisableLinkUnfurl()}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	respChannel, ts, err := c.slack.PostMessageContext(ctx, ch, opts...)
	if err != nil {
		return PostResult{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "post message failed", err)
	}
	return PostResult{Channel: respChannel, TS: ts}, nil
}

// OpenDMAndSend opens (or reuses) a direct message channel with userID and
// posts text to it.
func (c *Client) OpenDMAndSend(ctx context.Context, userID, text string) (PostResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return PostResult{}, toolerrors.New(toolerrors.KindUpstream, "missing user id")
	}
	channel, _, _, err := c.slack.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		return PostResult{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "open DM failed", err)
	}
	return c.PostMessage(ctx, channel.ID, text, "")
}

// CanvasRef is the result of creating a canvas.
type CanvasRef struct {
	Channel  string `json:"channel"`
	CanvasID string `json:"canvasId"`
	Title    string `json:"title"`
}

// CreateCanvas creates a Slack canvas in channel (slack_read.py's
// create_canvas). The SDK has no typed wrapper for the Canvas API, so this
// is issued as a raw authenticated POST, mirroring slack_web.py's
// slack_api_post helper.
func (c *Client) CreateCanvas(ctx context.Context, channel, title, markdown string) (CanvasRef, error) {
	ch, err := c.requireAllowedChannel(channel)
	if err != nil {
		return CanvasRef{}, err
	}
	title = strings.TrimSpace(title)
	markdown = strings.TrimSpace(markdown)
	if title == "" {
		return CanvasRef{}, toolerrors.New(toolerrors.KindUpstream, "missing title")
	}
	if markdown == "" {
		return CanvasRef{}, toolerrors.New(toolerrors.KindUpstream, "missing markdown")
	}

	body, err := json.Marshal(map[string]any{
		"channel_id": ch,
		"title":      title,
		"document_content": map[string]any{
			"type":     "markdown",
			"markdown": markdown,
		},
	})
	if err != nil {
		return CanvasRef{}, toolerrors.NewWithCause(toolerrors.KindUpstream, "encode canvas request", err)
	}

	var out struct {
		OK       bool   `json:"ok"`
		Error    string `json:"error"`
		CanvasID string `json:"canvas_id"`
	}
	if err := c.post(ctx, "conversations.canvases.create", body, &out); err != nil {
		return CanvasRef{}, err
	}
	if !out.OK {
		return CanvasRef{}, toolerrors.Errorf(toolerrors.KindUpstream, "create canvas: %s", orDefault(out.Error, "unknown_error"))
	}
	return CanvasRef{Channel: ch, CanvasID: out.CanvasID, Title: title}, nil
}

// AddReaction adds an emoji reaction to a message (slack_reply_tools.py's
// ack_reaction).
func (c *Client) AddReaction(ctx context.Context, channel, timestamp, emoji string) error {
	ch := strings.TrimSpace(channel)
	ts := strings.TrimSpace(timestamp)
	em := normalizeEmoji(emoji)
	if ch == "" || ts == "" || em == "" {
		return toolerrors.New(toolerrors.KindUpstream, "missing channel, timestamp, or emoji")
	}
	err := c.slack.AddReactionContext(ctx, em, slack.NewRefToMessage(ch, ts))
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, "add reaction failed", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, body []byte, out any) error {
	url := c.apiBaseURL + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, "build slack request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, fmt.Sprintf("%s failed", method), err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return toolerrors.NewWithCause(toolerrors.KindUpstream, fmt.Sprintf("%s: decode response", method), err)
	}
	return nil
}

func normalizeEmoji(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, ":") && strings.HasSuffix(s, ":") && len(s) > 2 {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

func boundLimit(limit, def, min, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit < min {
		limit = min
	}
	if limit > max {
		limit = max
	}
	return limit
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
