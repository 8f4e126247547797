// Package toolerrors provides the structured error type used at every tool
// and API boundary. A ToolError preserves message and causal context while
// still implementing the standard error interface, and carries the Kind
// classification that §7 of the spec maps onto HTTP status codes.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a tool failure independent of its message, so callers at
// the HTTP/job boundary can map it to a status code or retry decision without
// string matching.
type Kind string

const (
	// KindNotConfigured means a prerequisite (API key, table name, ...) is
	// missing. Never retried; surfaced as 500.
	KindNotConfigured Kind = "not_configured"
	// KindUpstream means an AI/chat/git-host call failed after the client's
	// own retries were exhausted. Surfaced as 502; Kind.HTTPStatus has no
	// separate status for an open circuit breaker.
	KindUpstream Kind = "upstream"
	// KindParse means model output failed to parse or violated a schema or
	// validator. Internal only; triggers a structured retry with feedback.
	KindParse Kind = "parse"
	// KindProtocolViolation means the agent loop tried to write before
	// loading, or post before writing. Returned to the model as a tool
	// error so it can correct course; never surfaced to the HTTP caller.
	KindProtocolViolation Kind = "protocol_violation"
	// KindPolicyCheck means a durable write was dropped because an
	// invariant was not met (e.g. a commitment lacking provenance).
	// Non-fatal: recorded on the event log, not returned as a failure.
	KindPolicyCheck Kind = "policy_check"
	// KindNotFound is a repository-level miss.
	KindNotFound Kind = "not_found"
	// KindConflict is produced by a conditional write losing a race.
	// Callers handle it idempotently: fetch the existing row and return it.
	KindConflict Kind = "conflict"
	// KindDomainNotAllowed is a browser-tool URL outside the allowlist.
	KindDomainNotAllowed Kind = "domain_not_allowed"
	// KindKeyNotAllowed is an object-store key outside the allowed prefix.
	KindKeyNotAllowed Kind = "key_not_allowed"
	// KindChannelNotAllowed is a chat-post target outside the bound thread.
	KindChannelNotAllowed Kind = "channel_not_allowed"
	// KindRepoNotAllowed is a git-host operation against an unbound repo.
	KindRepoNotAllowed Kind = "repo_not_allowed"
)

// HTTPStatus maps a Kind onto the status code named in spec section 7. Kinds
// with no caller-visible status (ProtocolViolation, PolicyCheck, Parse) are
// internal-only and return 0; such errors must never reach an HTTP response
// writer directly.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotConfigured:
		return 500
	case KindUpstream:
		return 502
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindDomainNotAllowed, KindKeyNotAllowed, KindChannelNotAllowed, KindRepoNotAllowed:
		return 400
	default:
		return 0
	}
}

// Retryable reports whether the runtime's resilience layer should attempt a
// retry for this kind at all. NotConfigured and the policy-scoped rejections
// are never retried; Upstream retryability is decided by the resilience
// classifier per attempt, not by Kind alone, so it is conservatively true
// here and left to the caller to bound attempts.
func (k Kind) Retryable() bool {
	switch k {
	case KindNotConfigured, KindProtocolViolation, KindPolicyCheck,
		KindDomainNotAllowed, KindKeyNotAllowed, KindChannelNotAllowed, KindRepoNotAllowed:
		return false
	default:
		return true
	}
}

// ToolError represents a structured tool failure that preserves message and
// causal context while still implementing the standard error interface. Tool
// errors nest via Cause so diagnostics survive retries and agent-as-tool
// hops; Kind lets the runtime and job store classify the failure without
// parsing Message.
type ToolError struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Kind classifies the failure for HTTP mapping and retry decisions.
	Kind Kind
	// Cause links to the underlying tool error, enabling error chains with
	// errors.Is/As.
	Cause *ToolError
	// Details carries structured, non-sensitive context (field names, the
	// rejected value class, and similar) surfaced alongside Message.
	Details map[string]any
}

// New constructs a ToolError of the given kind with the provided message.
func New(kind Kind, message string) *ToolError {
	if message == "" {
		message = string(kind)
	}
	return &ToolError{Kind: kind, Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error. The
// cause is converted into a ToolError chain so error metadata survives
// serialization while still supporting errors.Is/As through Unwrap.
func NewWithCause(kind Kind, message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Kind:    kind,
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a ToolError chain. An error that
// already carries a ToolError anywhere in its chain is returned unchanged;
// anything else is wrapped as KindUpstream, the most conservative default.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Kind:    KindUpstream,
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the result as a
// ToolError of the given kind.
func Errorf(kind Kind, format string, args ...any) *ToolError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// WithDetails attaches structured, non-sensitive context and returns the
// receiver for chaining.
func (e *ToolError) WithDetails(details map[string]any) *ToolError {
	e.Details = details
	return e
}

// ToolResult is the shape every tool handler returns across the tool
// boundary instead of a bare error, per spec section 7's propagation rule.
type ToolResult struct {
	OK            bool           `json:"ok"`
	Result        any            `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorCategory Kind           `json:"errorCategory,omitempty"`
	Retryable     bool           `json:"retryable,omitempty"`
	ErrorType     string         `json:"errorType,omitempty"`
	ErrorDetails  map[string]any `json:"errorDetails,omitempty"`
}

// Ok wraps a successful tool result.
func Ok(result any) ToolResult {
	return ToolResult{OK: true, Result: result}
}

// Fail converts a ToolError into the wire-level failure shape, clipping the
// message to the 800-character bound spec section 7 requires for job rows.
func Fail(err *ToolError) ToolResult {
	if err == nil {
		return ToolResult{OK: false}
	}
	msg := err.Error()
	if len(msg) > 800 {
		msg = msg[:800]
	}
	return ToolResult{
		OK:            false,
		Error:         msg,
		ErrorCategory: err.Kind,
		Retryable:     err.Kind.Retryable(),
		ErrorType:     string(err.Kind),
		ErrorDetails:  err.Details,
	}
}
