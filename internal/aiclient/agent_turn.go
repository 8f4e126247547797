package aiclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
)

// CallAgentTurnOptions configures one turn of a tool-using agent loop: unlike
// CallText/CallJSON, the model may return tool calls instead of (or besides)
// text, so the caller gets the raw *model.Response back rather than a
// decoded string or struct. StepNumber drives tuningForStep's step-count
// effort ladder instead of the per-attempt escalation call_text/call_json
// use, since an agent run's difficulty tracks how many steps it has taken,
// not how many times a single call failed.
type CallAgentTurnOptions struct {
	Purpose     string
	Config      PurposeConfig
	Messages    []*model.Message
	Tools       []*model.ToolDefinition
	ToolChoice  *model.ToolChoice
	StepNumber  int
	MaxTokens   int
	Temperature float32
	Retries     int
	Budget      *budget.Tracker
}

// CallAgentTurn runs one model call in a tool-using agent loop: the same
// per-purpose model chain, circuit breaker, and backoff machinery as
// CallText, but with Tools attached to the request and the full Response
// (text and/or tool calls) returned uninterpreted.
func (c *Client) CallAgentTurn(ctx context.Context, opts CallAgentTurnOptions) (*model.Response, Meta, error) {
	if c.breaker.Open() {
		return nil, Meta{}, &UpstreamError{Message: circuitOpenMessage}
	}

	attempts := opts.Retries
	if attempts <= 0 {
		attempts = defaultTextAttempts
	}
	messages := normalizeMessages(opts.Messages, defaultMaxPromptChars)

	chain := opts.Config.modelsToTry()
	if len(chain) == 0 {
		return nil, Meta{}, &NotConfiguredError{Message: fmt.Sprintf("aiclient: no model configured for purpose %q", opts.Purpose)}
	}

	tuning := tuningForStep(opts.Config, opts.StepNumber)

	var lastErr error
	for _, ref := range chain {
		provider, ok := c.providers[ref.Provider]
		if !ok {
			lastErr = &NotConfiguredError{Message: fmt.Sprintf("aiclient: provider %q not registered", ref.Provider)}
			continue
		}

		for attempt := 1; attempt <= attempts; attempt++ {
			req := &model.Request{
				Model:       ref.Model,
				Messages:    messages,
				Tools:       opts.Tools,
				ToolChoice:  opts.ToolChoice,
				MaxTokens:   effectiveMaxTokens(opts.MaxTokens, opts.Config.DefaultMaxTokens),
				Temperature: opts.Temperature,
			}
			applyTuningMeta(req, tuning)

			resp, err := provider.Complete(ctx, req)
			if err == nil {
				c.breaker.RecordSuccess()
				c.logger.Info(ctx, "ai_call_ok", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "attempts", attempt, "step", opts.StepNumber)
				c.recordUsage(opts.Budget, messages, extractResponseText(resp), resp, ref.Model)
				return resp, Meta{Purpose: opts.Purpose, Provider: ref.Provider, Model: ref.Model, Attempts: attempt, UsedResponseFormat: "agent_turn"}, nil
			}

			lastErr = err
			if isModelAccessError(err) {
				c.logger.Warn(ctx, "ai_model_unavailable", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "error", err.Error())
				break
			}
			c.breaker.RecordFailure()
			c.logger.Warn(ctx, "ai_agent_turn_failed", "purpose", opts.Purpose, "provider", ref.Provider, "model", ref.Model, "attempt", attempt, "error", err.Error())
			if attempt < attempts {
				c.sleep(backoffDelay(kindTools, attempt))
			}
		}
	}

	return nil, Meta{}, &UpstreamError{Message: "ai_agent_turn_failed", Cause: lastErr}
}

// extractResponseText concatenates the text parts of a response's content,
// for budget-tracker output-token estimation; tool-call-only responses
// yield an empty string, which recordUsage handles fine since actual token
// counts come from resp.Usage when present.
func extractResponseText(resp *model.Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if tp, ok := part.(model.TextPart); ok {
				b.WriteString(tp.Text)
			}
		}
	}
	return b.String()
}
