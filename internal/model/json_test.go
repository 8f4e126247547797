package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartMarshalJSONIncludesKind(t *testing.T) {
	cases := []struct {
		name string
		part Part
		kind string
	}{
		{
			name: "thinking",
			part: ThinkingPart{
				Text:      "think",
				Signature: "sig",
				Index:     1,
				Final:     true,
			},
			kind: "thinking",
		},
		{name: "text", part: TextPart{Text: "hello"}, kind: "text"},
		{name: "tool_use", part: ToolUsePart{Name: "search", Input: map[string]any{"q": "golang"}}, kind: "tool_use"},
		{name: "tool_result", part: ToolResultPart{ToolUseID: "tu", Content: map[string]any{"hits": 1}}, kind: "tool_result"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(Message{Role: ConversationRoleUser, Parts: []Part{tt.part}})
			require.NoError(t, err)
			var obj struct {
				Parts []map[string]json.RawMessage
			}
			require.NoError(t, json.Unmarshal(raw, &obj))
			require.Len(t, obj.Parts, 1)

			var kind string
			require.NoError(t, json.Unmarshal(obj.Parts[0]["Kind"], &kind))
			require.Equal(t, tt.kind, kind)
		})
	}
}

func TestDecodeMessagePartHonorsKind(t *testing.T) {
	const payload = `{"Kind":"tool_use","Name":"legacy","Args":{"q":"old"}}`
	part, err := decodeMessagePart([]byte(payload))
	require.NoError(t, err)

	tu, ok := part.(ToolUsePart)
	require.True(t, ok)
	require.Equal(t, "legacy", tu.Name)
	require.Equal(t, map[string]any{"q": "old"}, tu.Input)
}

func TestThinkingPartRoundTripPreservesSignature(t *testing.T) {
	orig := ThinkingPart{
		Text:      "let me think",
		Signature: "signed-by-provider",
		Redacted:  []byte{0x01, 0x02},
		Index:     3,
		Final:     true,
	}

	raw, err := json.Marshal(orig)
	require.NoError(t, err)

	part, err := decodeMessagePart(raw)
	require.NoError(t, err)

	got, ok := part.(ThinkingPart)
	require.True(t, ok)
	require.Equal(t, orig.Text, got.Text)
	require.Equal(t, orig.Signature, got.Signature)
	require.Equal(t, orig.Index, got.Index)
	require.Equal(t, orig.Final, got.Final)
	require.Equal(t, orig.Redacted, got.Redacted)
}

func TestMessageRoundTripPreservesRoleAndMeta(t *testing.T) {
	msg := Message{
		Role: ConversationRoleUser,
		Parts: []Part{
			TextPart{Text: "hi"},
			ToolResultPart{ToolUseID: "tu1", Content: "ok"},
		},
		Meta: map[string]any{"correlationId": "abc"},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, msg.Role, got.Role)
	require.Equal(t, msg.Meta, got.Meta)
	require.Len(t, got.Parts, 2)
	require.Equal(t, TextPart{Text: "hi"}, got.Parts[0])
}
