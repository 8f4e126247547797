package budget

import "strings"

// ModelPricing holds per-million-token USD pricing for a model family.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// pricing is the per-model USD-per-1M-token table. Kept in sync with the
// model classes the AI client routes to (internal/model.ModelClass); unknown
// models fall back to fallbackPricingKey in lookupPricing and to
// defaultPricingKey in tokensToTimeBudget.
var pricing = map[string]ModelPricing{
	"gpt-5.2":          {InputPerMillion: 1.75, OutputPerMillion: 14.00},
	"gpt-4o":           {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":      {InputPerMillion: 0.150, OutputPerMillion: 0.600},
	"gpt-4-turbo":      {InputPerMillion: 10.00, OutputPerMillion: 30.00},
	"gpt-4":            {InputPerMillion: 30.00, OutputPerMillion: 60.00},
	"gpt-3.5-turbo":    {InputPerMillion: 0.50, OutputPerMillion: 1.50},
	"claude-opus-4":    {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4":  {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4":   {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// defaultPricingKey is the default tracker model, and the model priced for
// the conservative max-token-budget conversion in NewTrackerFromTimeBudget
// when the given model has no exact entry in the table (the most expensive
// default model, per the original cost-anchor conversion, to stay within
// budget even if every
// token turns out to be an output token).
const defaultPricingKey = "gpt-5.2"

// fallbackPricingKey is used by calculateCost when no model is given or the
// model has no exact or partial match in the pricing table, mirroring the
// original implementation's choice of a cheaper default for cost estimation.
const fallbackPricingKey = "gpt-4o"

func lookupPricing(model string) ModelPricing {
	key := strings.ToLower(strings.TrimSpace(model))
	if key == "" {
		key = fallbackPricingKey
	}
	if p, ok := pricing[key]; ok {
		return p
	}
	for k, p := range pricing {
		if strings.Contains(key, k) || strings.Contains(k, key) {
			return p
		}
	}
	return pricing[fallbackPricingKey]
}

func calculateCost(inputTokens, outputTokens int, model string) float64 {
	p := lookupPricing(model)
	inputCost := float64(inputTokens) / 1_000_000 * p.InputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * p.OutputPerMillion
	return inputCost + outputCost
}

// estimateTokens approximates a token count from text length. The pack
// carries no tokenizer library for any provider's encoding, so this uses the
// same four-characters-per-token heuristic the original tracker falls back
// to when its own tokenizer call fails; exact counts come from provider
// TokenUsage responses once a call completes (see Tracker.RecordLLMCall).
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// tokensToTimeBudget converts a cost budget in USD into a token budget,
// conservatively pricing every token as an output token of the given (or
// default) model.
func tokensToTimeBudget(costBudgetUSD float64, model string) int {
	key := strings.ToLower(strings.TrimSpace(model))
	if key == "" {
		key = defaultPricingKey
	}
	p, ok := pricing[key]
	if !ok {
		p = pricing[defaultPricingKey]
	}
	if p.OutputPerMillion == 0 {
		return 0
	}
	return int((costBudgetUSD / p.OutputPerMillion) * 1_000_000)
}

// estimateTimeToTokens converts a time budget in minutes into a token
// budget using the cost-anchor conversion: 4 hours of agent time maps to a
// $10 cost budget, scaled proportionally, then converted to tokens at the
// model's output price.
func estimateTimeToTokens(minutes float64, model string) int {
	const hoursToCostBudget = 4.0
	const costBudgetForHours = 10.0
	hours := minutes / 60.0
	costBudget := (hours / hoursToCostBudget) * costBudgetForHours
	return tokensToTimeBudget(costBudget, model)
}
