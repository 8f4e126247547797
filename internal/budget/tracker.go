// Package budget implements the Token Budget Tracker: a per-job-run
// allocation of model tokens with checkpoint round-trip support and a
// human-readable status banding used to inject budget-awareness into
// agent and job-planner prompts.
package budget

import (
	"fmt"
)

// Usage is the cumulative token usage recorded against a Tracker.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CostUSD      float64
	Model        string
}

// Tracker tracks token budget and usage for a long-running agent run or job.
// It is not safe for concurrent use; callers serialize access the same way
// the agent runtime serializes a single run's steps (spec section 5).
type Tracker struct {
	BudgetTokens int
	Model        string
	Usage        Usage
}

// NewTracker constructs a Tracker with the given token budget and model.
func NewTracker(budgetTokens int, model string) *Tracker {
	if model == "" {
		model = defaultPricingKey
	}
	return &Tracker{
		BudgetTokens: budgetTokens,
		Model:        model,
		Usage:        Usage{Model: model},
	}
}

// NewTrackerFromTimeBudget builds a Tracker from a time or cost budget,
// mirroring TokenBudgetTracker.from_time_budget: a cost budget takes
// precedence over a minutes budget, and an unset pair defaults to 15
// minutes. Conversion uses the cost-anchor: 4 hours of agent time maps to a
// $10 token budget at the model's output price.
func NewTrackerFromTimeBudget(minutes, costBudgetUSD *float64, model string) *Tracker {
	if model == "" {
		model = defaultPricingKey
	}
	const defaultMinutes = 15.0

	var budgetTokens int
	switch {
	case costBudgetUSD != nil:
		budgetTokens = tokensToTimeBudget(*costBudgetUSD, model)
	case minutes != nil:
		budgetTokens = estimateTimeToTokens(*minutes, model)
	default:
		budgetTokens = estimateTimeToTokens(defaultMinutes, model)
	}
	return NewTracker(budgetTokens, model)
}

// RecordLLMCall records token usage from a model call. When inputTokens or
// outputTokens is nil, it is estimated from the corresponding text using the
// character-length heuristic in estimateTokens; callers that already have
// exact counts from a provider's model.TokenUsage should always pass them
// explicitly to avoid the heuristic.
func (t *Tracker) RecordLLMCall(inputText, outputText string, inputTokens, outputTokens *int) Usage {
	in := 0
	if inputTokens != nil {
		in = *inputTokens
	} else {
		in = estimateTokens(inputText)
	}
	out := 0
	if outputTokens != nil {
		out = *outputTokens
	} else {
		out = estimateTokens(outputText)
	}

	total := in + out
	cost := calculateCost(in, out, t.Model)

	t.Usage.InputTokens += in
	t.Usage.OutputTokens += out
	t.Usage.TotalTokens += total
	t.Usage.CostUSD += cost

	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: total, CostUSD: cost, Model: t.Model}
}

// RemainingTokens returns the remaining token budget, floored at zero.
func (t *Tracker) RemainingTokens() int {
	remaining := t.BudgetTokens - t.Usage.TotalTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingBudgetPercent returns the remaining budget as a percentage of
// BudgetTokens. A zero budget is reported as 100% remaining, matching the
// original tracker's behavior for an unset budget.
func (t *Tracker) RemainingBudgetPercent() float64 {
	if t.BudgetTokens == 0 {
		return 100.0
	}
	return (float64(t.RemainingTokens()) / float64(t.BudgetTokens)) * 100.0
}

// IsBudgetExhausted reports whether no tokens remain.
func (t *Tracker) IsBudgetExhausted() bool {
	return t.RemainingTokens() <= 0
}

// CanAfford reports whether the tracker has at least estimatedTokens left.
func (t *Tracker) CanAfford(estimatedTokens int) bool {
	return t.RemainingTokens() >= estimatedTokens
}

// EstimateTokens estimates the token count for a piece of text under this
// tracker's model.
func (t *Tracker) EstimateTokens(text string) int {
	return estimateTokens(text)
}

// CanAdd reports whether adding text would stay within budget.
func (t *Tracker) CanAdd(text string) bool {
	return t.CanAfford(t.EstimateTokens(text))
}

// ToDict returns a checkpoint-ready snapshot of the tracker's state, used
// across job checkpoint/resume boundaries (spec section 8).
func (t *Tracker) ToDict() map[string]any {
	return map[string]any{
		"budget_tokens": t.BudgetTokens,
		"model":         t.Model,
		"usage": map[string]any{
			"input_tokens":  t.Usage.InputTokens,
			"output_tokens": t.Usage.OutputTokens,
			"total_tokens":  t.Usage.TotalTokens,
			"cost_usd":      t.Usage.CostUSD,
		},
	}
}

// TrackerFromDict restores a Tracker from a checkpoint snapshot produced by
// ToDict. Missing fields default the same way the original tracker does:
// zero budget, default model, zero usage.
func TrackerFromDict(data map[string]any) *Tracker {
	budgetTokens, _ := data["budget_tokens"].(int)
	if budgetTokens == 0 {
		if f, ok := data["budget_tokens"].(float64); ok {
			budgetTokens = int(f)
		}
	}
	model, _ := data["model"].(string)
	if model == "" {
		model = defaultPricingKey
	}
	t := NewTracker(budgetTokens, model)

	usageRaw, _ := data["usage"].(map[string]any)
	t.Usage.InputTokens = toInt(usageRaw["input_tokens"])
	t.Usage.OutputTokens = toInt(usageRaw["output_tokens"])
	t.Usage.TotalTokens = toInt(usageRaw["total_tokens"])
	t.Usage.CostUSD = toFloat(usageRaw["cost_usd"])
	t.Usage.Model = model
	return t
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// budgetStatus bands the remaining-budget percentage into the four levels
// the original tracker reports to agents.
type budgetStatus string

const (
	statusHealthy  budgetStatus = "HEALTHY"
	statusModerate budgetStatus = "MODERATE"
	statusLow      budgetStatus = "LOW"
	statusCritical budgetStatus = "CRITICAL"
)

func (t *Tracker) status() budgetStatus {
	percent := t.RemainingBudgetPercent()
	switch {
	case percent > 50:
		return statusHealthy
	case percent > 25:
		return statusModerate
	case percent > 10:
		return statusLow
	default:
		return statusCritical
	}
}

// BudgetStatusMessage formats a human-readable status banding
// (healthy/moderate/low/critical at 50/25/10%) for injection into agent and
// job-planner prompts, per spec section 4 and the supplemented budget
// status feature.
func (t *Tracker) BudgetStatusMessage() string {
	remaining := t.RemainingTokens()
	percent := t.RemainingBudgetPercent()
	status := t.status()

	msg := fmt.Sprintf("Token Budget Status: %s\n", status)
	msg += fmt.Sprintf("- Budget: %d tokens\n", t.BudgetTokens)
	msg += fmt.Sprintf("- Used: %d tokens (%.1f%%)\n", t.Usage.TotalTokens, 100.0-percent)
	msg += fmt.Sprintf("- Remaining: %d tokens (%.1f%%)\n", remaining, percent)
	msg += fmt.Sprintf("- Cost so far: $%.4f\n", t.Usage.CostUSD)

	switch status {
	case statusCritical:
		msg += "\nBudget is critically low. Prioritize completing the current task and providing a final answer.\n"
	case statusLow:
		msg += "\nBudget is low. Consider wrapping up and providing a final answer soon.\n"
	case statusModerate:
		msg += "\nBudget is moderate. Continue working but be mindful of remaining budget.\n"
	default:
		msg += "\nBudget is healthy. Continue exploring and refining the solution.\n"
	}
	return msg
}
