// Package aiclient implements the two call surfaces (call_text, call_json)
// the agent runtime and job executor use to talk to language models, plus
// the shared machinery spec section 4.5 describes: a per-purpose model
// chain with no-retry breakout on model-access errors, a circuit breaker,
// exponential backoff, and schema-first structured output with graceful
// degradation through JSON-object mode to freeform extraction.
package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
)

// Meta describes how a call succeeded: which model answered, how many
// attempts it took, and which response mode produced the output.
type Meta struct {
	Purpose            string
	Provider           string
	Model              string
	Attempts           int
	UsedResponseFormat string
}

const (
	defaultMaxPromptChars = 220_000
	// defaultTextAttempts and defaultJSONAttempts count total attempts per
	// model in the chain, not additional retries.
	defaultTextAttempts = 3
	defaultJSONAttempts = 3

	textBackoffBase = 300 * time.Millisecond
	textBackoffCap  = 2500 * time.Millisecond
	jsonBackoffBase = 400 * time.Millisecond
	jsonBackoffCap  = 3000 * time.Millisecond
	backoffJitter   = 0.2
)

// Client dispatches call_text/call_json requests across a configured set of
// provider adapters, applying the circuit breaker and model-chain fallback
// uniformly regardless of which providers back a given purpose.
type Client struct {
	providers map[string]model.Client
	breaker   *CircuitBreaker
	logger    telemetry.Logger
	sleep     func(time.Duration)
}

// NewClient constructs a Client. providers maps a provider name ("anthropic",
// "openai", "bedrock") to its model.Client adapter; a PurposeConfig's
// ModelRef.Provider must match a key here.
func NewClient(providers map[string]model.Client, logger telemetry.Logger) *Client {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Client{
		providers: providers,
		breaker:   NewCircuitBreaker(5, 60*time.Second, 15*time.Second),
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// CallTextOptions configures a call_text invocation.
type CallTextOptions struct {
	Purpose        string
	Config         PurposeConfig
	Messages       []*model.Message
	MaxTokens      int
	Temperature    float32
	Retries        int
	MaxPromptChars int
	// Validate returns a non-nil error describing why out failed
	// verification; a non-nil result is treated as a ParseError and may
	// trigger a retry with feedback.
	Validate func(out string) error
	Budget   *budget.Tracker
}

// CallText runs the text call surface: per-purpose model chain, retries with
// backoff, retry-feedback injection on parse/validation failure, and
// successful-call token recording into Budget (spec section 4.5).
func (c *Client) CallText(ctx context.Context, opts CallTextOptions) (string, Meta, error) {
	if c.breaker.Open() {
		return "", Meta{}, &UpstreamError{Message: circuitOpenMessage}
	}

	attempts := opts.Retries
	if attempts <= 0 {
		attempts = defaultTextAttempts
	}
	maxPromptChars := opts.MaxPromptChars
	if maxPromptChars <= 0 {
		maxPromptChars = defaultMaxPromptChars
	}
	messages := normalizeMessages(opts.Messages, maxPromptChars)

	chain := opts.Config.modelsToTry()
	if len(chain) == 0 {
		return "", Meta{}, &NotConfiguredError{Message: fmt.Sprintf("aiclient: no model configured for purpose %q", opts.Purpose)}
	}

	var lastErr error
	for _, ref := range chain {
		provider, ok := c.providers[ref.Provider]
		if !ok {
			lastErr = &NotConfiguredError{Message: fmt.Sprintf("aiclient: provider %q not registered", ref.Provider)}
			continue
		}

		var prevErr error
		attemptMessages := messages
		for attempt := 1; attempt <= attempts; attempt++ {
			if attempt >= 2 && isParseFailure(prevErr) {
				attemptMessages = append(append([]*model.Message{}, messages...), retryFeedbackMessage(kindText, opts.Purpose, prevErr))
			}

			tuning := tuningFor(opts.Config, kindText, opts.Purpose, attempt, prevErr)
			req := &model.Request{
				Model:       ref.Model,
				Messages:    attemptMessages,
				MaxTokens:   effectiveMaxTokens(opts.MaxTokens, opts.Config.DefaultMaxTokens),
				Temperature: opts.Temperature,
			}
			applyTuningMeta(req, tuning)

			resp, err := provider.Complete(ctx, req)
			if err == nil {
				out := strings.TrimSpace(extractText(resp))
				if out == "" {
					err = &ParseError{Message: "empty_model_response"}
				} else if opts.Validate != nil {
					if verr := opts.Validate(out); verr != nil {
						err = &ParseError{Message: "validation_failed", Cause: verr}
					}
				}
				if err == nil {
					c.breaker.RecordSuccess()
					c.recordUsage(opts.Budget, messages, out, resp, ref.Model)
					c.logger.Info(ctx, "ai_call_ok", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "attempts", attempt)
					return out, Meta{Purpose: opts.Purpose, Provider: ref.Provider, Model: ref.Model, Attempts: attempt, UsedResponseFormat: "text"}, nil
				}
			}

			lastErr = err
			prevErr = err
			if isModelAccessError(err) {
				c.logger.Warn(ctx, "ai_model_unavailable", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "error", err.Error())
				break
			}
			c.breaker.RecordFailure()
			c.logger.Warn(ctx, "ai_text_failed", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "attempt", attempt, "error", err.Error())
			if attempt < attempts {
				c.sleep(backoffDelay(kindText, attempt))
			}
		}
	}

	return "", Meta{}, &UpstreamError{Message: "ai_text_failed", Cause: lastErr}
}

// CallJSONOptions configures a call_json invocation. T is decoded via
// encoding/json from the model's output.
type CallJSONOptions[T any] struct {
	Purpose        string
	Config         PurposeConfig
	Messages       []*model.Message
	Schema         json.RawMessage
	MaxTokens      int
	Temperature    float32
	Retries        int
	MaxPromptChars int
	AllowExtract   bool
	ValidateParsed func(T) error
	Fallback       func() (T, error)
	Budget         *budget.Tracker
}

// CallJSON runs the json call surface: the same per-purpose model chain and
// retry machinery as CallText, decoding and validating T from the model's
// output, with an optional Fallback for graceful degradation instead of
// returning an error (spec section 4.5).
func CallJSON[T any](ctx context.Context, c *Client, opts CallJSONOptions[T]) (T, Meta, error) {
	var zero T
	if c.breaker.Open() {
		return zero, Meta{}, &UpstreamError{Message: circuitOpenMessage}
	}

	attempts := opts.Retries
	if attempts <= 0 {
		attempts = defaultJSONAttempts
	}
	maxPromptChars := opts.MaxPromptChars
	if maxPromptChars <= 0 {
		maxPromptChars = defaultMaxPromptChars
	}
	messages := normalizeMessages(opts.Messages, maxPromptChars)

	chain := opts.Config.modelsToTry()
	if len(chain) == 0 {
		return zero, Meta{}, &NotConfiguredError{Message: fmt.Sprintf("aiclient: no model configured for purpose %q", opts.Purpose)}
	}

	var lastErr error
	for _, ref := range chain {
		provider, ok := c.providers[ref.Provider]
		if !ok {
			lastErr = &NotConfiguredError{Message: fmt.Sprintf("aiclient: provider %q not registered", ref.Provider)}
			continue
		}

		var prevErr error
		attemptMessages := messages
		for attempt := 1; attempt <= attempts; attempt++ {
			if attempt >= 2 && isParseFailure(prevErr) {
				attemptMessages = append(append([]*model.Message{}, messages...), retryFeedbackMessage(kindJSON, opts.Purpose, prevErr))
			}

			tuning := tuningFor(opts.Config, kindJSON, opts.Purpose, attempt, prevErr)
			parsed, resp, usedFormat, err := tryStructuredModes(ctx, provider, ref, opts, attemptMessages, tuning, attempt, prevErr)
			if err == nil {
				c.breaker.RecordSuccess()
				c.recordUsage(opts.Budget, messages, "", resp, ref.Model)
				c.logger.Info(ctx, "ai_call_ok", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "attempts", attempt, "format", usedFormat)
				return parsed, Meta{Purpose: opts.Purpose, Provider: ref.Provider, Model: ref.Model, Attempts: attempt, UsedResponseFormat: usedFormat}, nil
			}

			lastErr = err
			prevErr = err
			if isModelAccessError(err) {
				c.logger.Warn(ctx, "ai_model_unavailable", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "error", err.Error())
				break
			}
			c.breaker.RecordFailure()
			c.logger.Warn(ctx, "ai_json_failed", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "attempt", attempt, "error", err.Error())
			if attempt < attempts {
				c.sleep(backoffDelay(kindJSON, attempt))
			}
		}
	}

	if opts.Fallback != nil {
		out, ferr := opts.Fallback()
		if ferr == nil {
			primary := chain[0]
			c.logger.Warn(ctx, "ai_json_fallback", "purpose", opts.Purpose)
			return out, Meta{Purpose: opts.Purpose, Provider: primary.Provider, Model: primary.Model, Attempts: attempts, UsedResponseFormat: "fallback"}, nil
		}
		lastErr = ferr
	}

	return zero, Meta{}, &UpstreamError{Message: "ai_json_failed", Cause: lastErr}
}

// tryStructuredModes attempts, in order: strict JSON-schema mode, then
// JSON-object mode, then freeform extract-first-{...} — the degradation
// ladder spec section 4.5 describes for structured-output calls.
func tryStructuredModes[T any](ctx context.Context, provider model.Client, ref ModelRef, opts CallJSONOptions[T], messages []*model.Message, tuning Tuning, attempt int, prevErr error) (T, *model.Response, string, error) {
	var zero T

	modes := []struct {
		name   string
		schema json.RawMessage
	}{
		{"json_schema", opts.Schema},
		{"json_object", nil},
	}

	var lastErr error
	for i, mode := range modes {
		req := &model.Request{
			Model:       ref.Model,
			Messages:    messages,
			MaxTokens:   effectiveMaxTokens(opts.MaxTokens, opts.Config.DefaultMaxTokens),
			Temperature: opts.Temperature,
		}
		applyTuningMeta(req, tuning)
		if mode.schema != nil {
			req.ResponseFormat = "json_schema"
			req.JSONSchema = normalizeStrictSchema(mode.schema)
		} else {
			req.ResponseFormat = "json_object"
		}

		resp, err := provider.Complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		raw := strings.TrimSpace(extractText(resp))
		if raw == "" {
			lastErr = &ParseError{Message: "empty_model_response"}
			continue
		}

		candidate := raw
		allowExtract := opts.AllowExtract && i == len(modes)-1
		if allowExtract {
			if extracted := extractFirstJSONObject(raw); extracted != "" {
				candidate = extracted
			}
		}

		var parsed T
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			lastErr = &ParseError{Message: "json_decode_error", Cause: err}
			continue
		}
		if opts.ValidateParsed != nil {
			if verr := opts.ValidateParsed(parsed); verr != nil {
				lastErr = &ParseError{Message: "validation_failed", Cause: verr}
				continue
			}
		}
		return parsed, resp, "chat_" + mode.name, nil
	}

	// Freeform extraction as the final rung, independent of AllowExtract's
	// per-mode gating above (it still applies within json_object mode).
	if opts.AllowExtract {
		req := &model.Request{Model: ref.Model, Messages: messages, MaxTokens: effectiveMaxTokens(opts.MaxTokens, opts.Config.DefaultMaxTokens), Temperature: opts.Temperature}
		applyTuningMeta(req, tuning)
		resp, err := provider.Complete(ctx, req)
		if err == nil {
			raw := strings.TrimSpace(extractText(resp))
			if extracted := extractFirstJSONObject(raw); extracted != "" {
				var parsed T
				if err := json.Unmarshal([]byte(extracted), &parsed); err == nil {
					if opts.ValidateParsed == nil || opts.ValidateParsed(parsed) == nil {
						return parsed, resp, "freeform_extract", nil
					}
				}
			}
		}
	}

	return zero, nil, "", lastErr
}

func backoffDelayBase(kind callKind) (base, maxDelay time.Duration) {
	if kind == kindJSON {
		return jsonBackoffBase, jsonBackoffCap
	}
	return textBackoffBase, textBackoffCap
}

var jsonRegex = regexp.MustCompile(`(?s)\{.*\}`)

func extractFirstJSONObject(text string) string {
	return jsonRegex.FindString(text)
}
