// Package model defines the provider-agnostic message and streaming types
// used by the agent runtime, job executor, and AI client provider adapters.
// Messages are modeled as typed parts (text, thinking, tool use/result,
// citations) rather than flattened strings, so provider adapters can
// round-trip structure without lossy string parsing.
package model

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

type (
	// Part is a marker interface implemented by all message parts.
	Part interface {
		isPart()
	}

	// ImageFormat identifies the on-wire format of an image part.
	ImageFormat string

	// DocumentFormat identifies the on-wire format (extension) of a document part.
	DocumentFormat string

	// TextPart is a plain text content block in a message.
	TextPart struct {
		Text string
	}

	// ImagePart carries image bytes attached to a user message.
	ImagePart struct {
		Format ImageFormat
		Bytes  []byte
	}

	// DocumentPart carries document content attached to a user message.
	// Exactly one of Bytes, Text, Chunks, or URI should be provided.
	DocumentPart struct {
		Name    string
		Format  DocumentFormat
		Bytes   []byte
		Text    string
		Chunks  []string
		URI     string
		Context string
		Cite    bool
	}

	// CitationsPart is generated content paired with citation metadata.
	// Providers may emit this instead of a TextPart when citations are on.
	CitationsPart struct {
		Text      string
		Citations []Citation
	}

	// Citation links generated content back to a location in a source document.
	Citation struct {
		Title         string
		Source        string
		Location      CitationLocation
		SourceContent []string
	}

	// CitationLocation identifies where cited content can be found. Exactly
	// one of DocumentChar, DocumentChunk, or DocumentPage should be set.
	CitationLocation struct {
		DocumentChar  *DocumentCharLocation
		DocumentChunk *DocumentChunkLocation
		DocumentPage  *DocumentPageLocation
	}

	DocumentCharLocation struct {
		DocumentIndex int
		Start, End    int
	}

	DocumentChunkLocation struct {
		DocumentIndex int
		Start, End    int
	}

	DocumentPageLocation struct {
		DocumentIndex int
		Start, End    int
	}

	// ThinkingPart represents provider-issued reasoning content. Callers
	// treat it as opaque and surface it according to UI policy.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
		Index     int
		Final     bool
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result attached to a user message so the
	// model can read it on the next turn.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// CacheCheckpointPart marks a cache boundary in a message. Provider
	// adapters that don't support caching ignore it.
	CacheCheckpointPart struct{}

	// Message is a single chat message: an ordered list of typed parts plus
	// a role and optional metadata.
	Message struct {
		Role  ConversationRole
		Parts []Part
		Meta  map[string]any
	}

	// ToolDefinition describes a tool exposed to the model: name,
	// description, and JSON Schema input, mirroring a Registry entry.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolCall is a requested tool invocation from the model.
	ToolCall struct {
		Name tools.Ident

		// Payload is canonical JSON; planners and runtimes treat it as
		// opaque and rely on codecs for schema-aware decoding.
		Payload json.RawMessage
		ID      string
	}

	// ToolCallDelta is an incremental tool-call payload fragment streamed by
	// providers while still constructing the full tool input JSON. This is a
	// best-effort UX signal only: the canonical payload is always the final
	// ChunkTypeToolCall's ToolCall.Payload.
	ToolCallDelta struct {
		Name  tools.Ident
		ID    string
		Delta string
	}

	// ToolChoiceMode controls how the model uses tools for a request.
	ToolChoiceMode string

	// ToolChoice configures optional tool-use behavior for a Request.
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Request captures inputs for a model invocation.
	Request struct {
		RunID       string
		Model       string
		ModelClass  ModelClass
		Messages    []*Message
		Temperature float32
		Tools       []*ToolDefinition
		ToolChoice  *ToolChoice
		MaxTokens   int
		Stream      bool
		Thinking    *ThinkingOptions
		Cache       *CacheOptions

		// ReasoningEffort and Verbosity are provider tuning hints ("low",
		// "medium", "high") set by the AI client's per-attempt escalation;
		// adapters map them to the provider's native parameter, or ignore
		// them if unsupported.
		ReasoningEffort string
		Verbosity       string

		// ResponseFormat requests structured output: "" or "text" for
		// freeform, "json_object" for any-JSON mode, "json_schema" for
		// schema-constrained mode using JSONSchema.
		ResponseFormat string
		JSONSchema     json.RawMessage
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content   []Message
		ToolCalls []ToolCall
		Usage     TokenUsage

		// StopReason records why generation stopped (provider-specific).
		StopReason string
	}

	// Chunk is a streaming event from the model, classified by Type.
	Chunk struct {
		Type          string
		Message       *Message
		Thinking      string
		ToolCall      *ToolCall
		ToolCallDelta *ToolCallDelta
		UsageDelta    *TokenUsage
		StopReason    string
	}

	// ThinkingOptions configures provider thinking/reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		Interleaved  bool
		BudgetTokens int
	}

	// CacheOptions configures prompt caching. When nil on a Request, the
	// runtime may populate it from the agent's run policy so call sites
	// don't need to thread CacheOptions through every call.
	CacheOptions struct {
		AfterSystem bool
		AfterTools  bool
	}

	// ModelClass identifies a model family; providers map it to a concrete
	// model identifier (spec section 4: high-reasoning vs default vs small).
	ModelClass string

	// Client is the provider-agnostic model client implemented by each of
	// the Anthropic, OpenAI, and Bedrock adapters and composed by the
	// fallback-chain wrapper in internal/aiclient.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers drain Recv until
	// it returns an error (io.EOF on clean completion), then call Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
		Metadata() map[string]any
	}
)

const (
	ConversationRoleSystem    ConversationRole = "system"
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
)

const (
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	ToolChoiceModeNone ToolChoiceMode = "none"
	ToolChoiceModeAny  ToolChoiceMode = "any"
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

const (
	ChunkTypeText          = "text"
	ChunkTypeToolCall      = "tool_call"
	ChunkTypeToolCallDelta = "tool_call_delta"
	ChunkTypeThinking      = "thinking"
	ChunkTypeUsage         = "usage"
	ChunkTypeStop          = "stop"
)

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
	ImageFormatGIF  ImageFormat = "gif"
	ImageFormatWEBP ImageFormat = "webp"
)

const (
	DocumentFormatPDF  DocumentFormat = "pdf"
	DocumentFormatCSV  DocumentFormat = "csv"
	DocumentFormatDOC  DocumentFormat = "doc"
	DocumentFormatDOCX DocumentFormat = "docx"
	DocumentFormatXLS  DocumentFormat = "xls"
	DocumentFormatXLSX DocumentFormat = "xlsx"
	DocumentFormatHTML DocumentFormat = "html"
	DocumentFormatTXT  DocumentFormat = "txt"
	DocumentFormatMD   DocumentFormat = "md"
)

const (
	// ModelClassHighReasoning selects the high-reasoning model family used
	// for planning and ambiguous judgment calls.
	ModelClassHighReasoning ModelClass = "high-reasoning"
	// ModelClassDefault selects the default model family used for routine
	// tool-using turns.
	ModelClassDefault ModelClass = "default"
	// ModelClassSmall selects a small/cheap model family for classification
	// and summarization steps.
	ModelClassSmall ModelClass = "small"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after the client's own retries were exhausted. Callers must not
// retry in a tight loop; this is surfaced up as an Upstream tool error.
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()            {}
func (ImagePart) isPart()           {}
func (DocumentPart) isPart()        {}
func (CitationsPart) isPart()       {}
func (ThinkingPart) isPart()        {}
func (ToolUsePart) isPart()         {}
func (ToolResultPart) isPart()      {}
func (CacheCheckpointPart) isPart() {}
