package tools

import (
	"context"
	"encoding/json"

	"github.com/polaris-ecosystems/rfp-agent/internal/chatops"
)

const (
	IdentChatListRecentMessages Ident = "chat_list_recent_messages"
	IdentChatGetThread          Ident = "chat_get_thread"
	IdentChatGetUserInfo        Ident = "chat_get_user_info"
	IdentChatPostMessage        Ident = "chat_post_message"
	IdentChatOpenDMAndSend      Ident = "chat_open_dm_and_send"
	IdentChatCreateCanvas       Ident = "chat_create_canvas"
	IdentChatAddReaction        Ident = "chat_add_reaction"
)

const chatChannelSchemaFragment = `"channel": {"type": "string", "minLength": 1, "maxLength": 64}`

const chatListRecentMessagesSchema = `{
	"type": "object",
	"properties": {
		` + chatChannelSchemaFragment + `,
		"limit": {"type": "integer", "minimum": 1, "maximum": 25}
	},
	"required": ["channel"],
	"additionalProperties": false
}`

const chatGetThreadSchema = `{
	"type": "object",
	"properties": {
		` + chatChannelSchemaFragment + `,
		"threadTs": {"type": "string", "minLength": 1, "maxLength": 32},
		"limit": {"type": "integer", "minimum": 1, "maximum": 50}
	},
	"required": ["channel", "threadTs"],
	"additionalProperties": false
}`

const chatGetUserInfoSchema = `{
	"type": "object",
	"properties": {"userId": {"type": "string", "minLength": 1, "maxLength": 32}},
	"required": ["userId"],
	"additionalProperties": false
}`

const chatPostMessageSchema = `{
	"type": "object",
	"properties": {
		` + chatChannelSchemaFragment + `,
		"text": {"type": "string", "minLength": 1, "maxLength": 4000},
		"threadTs": {"type": "string", "maxLength": 32}
	},
	"required": ["channel", "text"],
	"additionalProperties": false
}`

const chatOpenDMAndSendSchema = `{
	"type": "object",
	"properties": {
		"userId": {"type": "string", "minLength": 1, "maxLength": 32},
		"text": {"type": "string", "minLength": 1, "maxLength": 4000}
	},
	"required": ["userId", "text"],
	"additionalProperties": false
}`

const chatCreateCanvasSchema = `{
	"type": "object",
	"properties": {
		` + chatChannelSchemaFragment + `,
		"title": {"type": "string", "minLength": 1, "maxLength": 200},
		"markdown": {"type": "string", "minLength": 1, "maxLength": 20000}
	},
	"required": ["channel", "title", "markdown"],
	"additionalProperties": false
}`

const chatAddReactionSchema = `{
	"type": "object",
	"properties": {
		` + chatChannelSchemaFragment + `,
		"timestamp": {"type": "string", "minLength": 1, "maxLength": 32},
		"emoji": {"type": "string", "minLength": 1, "maxLength": 64}
	},
	"required": ["channel", "timestamp", "emoji"],
	"additionalProperties": false
}`

// RegisterChatTools wires the Chat platform category (spec section 6: Chat
// platform) onto client. History/profile lookups are safe reads; posting,
// canvases, and reactions are operator-only reply tools.
func RegisterChatTools(registry *Registry, client *chatops.Client) error {
	listRecent, err := NewTool(IdentChatListRecentMessages, "List the most recent messages in a channel.", CategorySlack, AccessRead, []byte(chatListRecentMessagesSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Channel string `json:"channel"`
			Limit   int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.ListRecentMessages(ctx, in.Channel, in.Limit)
	})
	if err != nil {
		return err
	}

	getThread, err := NewTool(IdentChatGetThread, "List replies in a message thread.", CategorySlack, AccessRead, []byte(chatGetThreadSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Channel  string `json:"channel"`
			ThreadTS string `json:"threadTs"`
			Limit    int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.GetThread(ctx, in.Channel, in.ThreadTS, in.Limit)
	})
	if err != nil {
		return err
	}

	getUserInfo, err := NewTool(IdentChatGetUserInfo, "Fetch a chat user's profile.", CategorySlack, AccessRead, []byte(chatGetUserInfoSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.GetUserInfo(ctx, in.UserID)
	})
	if err != nil {
		return err
	}

	postMessage, err := NewTool(IdentChatPostMessage, "Post a message to a channel, optionally as a threaded reply.", CategorySlack, AccessOperator, []byte(chatPostMessageSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Channel  string `json:"channel"`
			Text     string `json:"text"`
			ThreadTS string `json:"threadTs"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.PostMessage(ctx, in.Channel, in.Text, in.ThreadTS)
	})
	if err != nil {
		return err
	}

	openDM, err := NewTool(IdentChatOpenDMAndSend, "Open a direct message channel with a user and send text.", CategorySlack, AccessOperator, []byte(chatOpenDMAndSendSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			UserID string `json:"userId"`
			Text   string `json:"text"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.OpenDMAndSend(ctx, in.UserID, in.Text)
	})
	if err != nil {
		return err
	}

	createCanvas, err := NewTool(IdentChatCreateCanvas, "Create a canvas document in a channel.", CategorySlack, AccessOperator, []byte(chatCreateCanvasSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Channel  string `json:"channel"`
			Title    string `json:"title"`
			Markdown string `json:"markdown"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return client.CreateCanvas(ctx, in.Channel, in.Title, in.Markdown)
	})
	if err != nil {
		return err
	}

	addReaction, err := NewTool(IdentChatAddReaction, "Add an emoji reaction to a message.", CategorySlack, AccessOperator, []byte(chatAddReactionSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Channel   string `json:"channel"`
			Timestamp string `json:"timestamp"`
			Emoji     string `json:"emoji"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		if err := client.AddReaction(ctx, in.Channel, in.Timestamp, in.Emoji); err != nil {
			return nil, err
		}
		return map[string]any{"channel": in.Channel, "timestamp": in.Timestamp, "emoji": in.Emoji}, nil
	})
	if err != nil {
		return err
	}

	for _, tool := range []*Tool{listRecent, getThread, getUserInfo, postMessage, openDM, createCanvas, addReaction} {
		registry.Register(tool)
	}
	return nil
}
