package aiclient

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
)

// normalizeMessages clips each text part to maxChars total across the
// conversation so a runaway transcript doesn't blow the provider's context
// window, mirroring the original's _normalize_messages. Clipping drops from
// the front of the oldest messages first, preserving the most recent turns.
func normalizeMessages(messages []*model.Message, maxChars int) []*model.Message {
	total := 0
	for _, m := range messages {
		total += messageChars(m)
	}
	if total <= maxChars {
		return messages
	}

	out := make([]*model.Message, len(messages))
	copy(out, messages)
	over := total - maxChars
	for i := 0; i < len(out) && over > 0; i++ {
		n := messageChars(out[i])
		if n == 0 {
			continue
		}
		trim := n
		if trim > over {
			trim = over
		}
		out[i] = clipMessage(out[i], n-trim)
		over -= trim
	}
	return out
}

func messageChars(m *model.Message) int {
	n := 0
	for _, p := range m.Parts {
		if tp, ok := p.(model.TextPart); ok {
			n += len(tp.Text)
		}
	}
	return n
}

func clipMessage(m *model.Message, keep int) *model.Message {
	clipped := &model.Message{Role: m.Role, Meta: m.Meta}
	for _, p := range m.Parts {
		if tp, ok := p.(model.TextPart); ok {
			if len(tp.Text) > keep {
				clipped.Parts = append(clipped.Parts, model.TextPart{Text: tp.Text[len(tp.Text)-keep:]})
				keep = 0
				continue
			}
			keep -= len(tp.Text)
		}
		clipped.Parts = append(clipped.Parts, p)
	}
	return clipped
}

// extractText concatenates the text-bearing parts of a response's messages,
// treating CitationsPart text the same as plain TextPart.
func extractText(resp *model.Response) string {
	var sb strings.Builder
	for _, m := range resp.Content {
		for _, p := range m.Parts {
			switch part := p.(type) {
			case model.TextPart:
				sb.WriteString(part.Text)
			case model.CitationsPart:
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

const (
	retryFeedbackMaxPrevErr    = 500
	retryFeedbackMaxPrevOutput = 1200
)

// retryFeedbackMessage builds a user-role message describing the previous
// attempt's failure and asking for corrected, JSON-only (or plain-text-only)
// output, mirroring the original's _retry_feedback_message.
func retryFeedbackMessage(kind callKind, purpose string, prevErr error) *model.Message {
	errText := clip(prevErr.Error(), retryFeedbackMaxPrevErr)
	var body string
	if kind == kindJSON {
		body = fmt.Sprintf("[RETRY_FEEDBACK purpose=%s kind=json]\nThe previous response failed: %s\nRespond with corrected output that is valid JSON ONLY, matching the requested schema exactly. Do not include any prose, markdown fences, or explanation outside the JSON object.", purpose, errText)
	} else {
		body = fmt.Sprintf("[RETRY_FEEDBACK purpose=%s kind=text]\nThe previous response failed: %s\nRespond again, correcting the issue described above.", purpose, errText)
	}
	return &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: body}}}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// effectiveMaxTokens resolves the token cap for one attempt: the caller's
// explicit request, falling back to the purpose's configured default, falling
// back to a hardcoded floor. Degrading the cap after a timeout/resource-class
// failure is a separate, coarser-grained concern the agent runtime and job
// executor apply at the step level via resilience.AdjustedRetryParams; the
// call surface here always honors what the caller asked for.
func effectiveMaxTokens(requested, purposeDefault int) int {
	max := requested
	if max <= 0 {
		max = purposeDefault
	}
	if max <= 0 {
		max = 4096
	}
	return max
}

// applyTuningMeta copies a Tuning into the provider-facing Request fields.
func applyTuningMeta(req *model.Request, tuning Tuning) {
	req.ReasoningEffort = tuning.ReasoningEffort
	req.Verbosity = tuning.Verbosity
}

// isModelAccessError reports whether err indicates the requested model is
// unknown to, or inaccessible on, the provider account — a configuration
// problem that retrying the same model cannot fix. The model chain breaks to
// the next model immediately instead of burning retries (spec section 4.5),
// mirroring the original's _is_model_access_error.
func isModelAccessError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "model_not_found") ||
		strings.Contains(msg, "does not have access to model") ||
		strings.Contains(msg, "unknown model")
}

// backoffDelay computes the jittered exponential backoff for the given call
// kind and attempt, using the text/json base and cap constants.
func backoffDelay(kind callKind, attempt int) time.Duration {
	base, maxDelay := backoffDelayBase(kind)
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitterRange := float64(delay) * backoffJitter
	delta := (rand.Float64()*2 - 1) * jitterRange
	result := time.Duration(float64(delay) + delta)
	if result < 0 {
		result = 0
	}
	return result
}

// recordUsage records token usage for a successful call into tracker, if
// present.
func (c *Client) recordUsage(tracker *budget.Tracker, messages []*model.Message, output string, resp *model.Response, modelName string) {
	if tracker == nil {
		return
	}
	var inputBuilder strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				inputBuilder.WriteString(tp.Text)
			}
		}
	}
	var inTok, outTok *int
	if resp != nil && resp.Usage.TotalTokens > 0 {
		in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens
		inTok, outTok = &in, &out
	}
	tracker.RecordLLMCall(inputBuilder.String(), output, inTok, outTok)
}
