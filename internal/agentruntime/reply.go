package agentruntime

import "context"

// ReplyPoster posts the run's final text to the chat platform when the
// model produced plain text but never called a reply tool itself — the
// fallback path, not the primary one. A real implementation lives in the
// chat-platform package; this interface exists so agentruntime doesn't
// depend on it directly.
type ReplyPoster interface {
	PostMessage(ctx context.Context, channelID, threadTS, text string) error
}
