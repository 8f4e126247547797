package budget_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
)

func TestNewTrackerFromTimeBudgetDefaultsTo15Minutes(t *testing.T) {
	withMinutes := budget.NewTrackerFromTimeBudget(nil, nil, "gpt-5.2")
	fifteen := 15.0
	explicit := budget.NewTrackerFromTimeBudget(&fifteen, nil, "gpt-5.2")
	assert.Equal(t, explicit.BudgetTokens, withMinutes.BudgetTokens)
}

func TestNewTrackerFromTimeBudgetCostTakesPrecedence(t *testing.T) {
	minutes := 120.0
	cost := 5.0
	tr := budget.NewTrackerFromTimeBudget(&minutes, &cost, "gpt-5.2")
	wantOnlyCost := budget.NewTrackerFromTimeBudget(nil, &cost, "gpt-5.2")
	assert.Equal(t, wantOnlyCost.BudgetTokens, tr.BudgetTokens)
}

func TestRecordLLMCallAccumulatesUsage(t *testing.T) {
	tr := budget.NewTracker(10000, "gpt-4o")
	in, out := 100, 50
	u := tr.RecordLLMCall("", "", &in, &out)
	assert.Equal(t, 150, u.TotalTokens)
	assert.Equal(t, 150, tr.Usage.TotalTokens)
	assert.Equal(t, 9850, tr.RemainingTokens())
}

func TestBudgetExhaustedFloorsAtZero(t *testing.T) {
	tr := budget.NewTracker(10, "gpt-4o")
	in, out := 100, 100
	tr.RecordLLMCall("", "", &in, &out)
	assert.Equal(t, 0, tr.RemainingTokens())
	assert.True(t, tr.IsBudgetExhausted())
}

func TestBudgetStatusMessageBands(t *testing.T) {
	cases := []struct {
		name    string
		used    int
		budget  int
		wantHas string
	}{
		{"healthy", 10, 1000, "HEALTHY"},
		{"moderate", 600, 1000, "MODERATE"},
		{"low", 800, 1000, "LOW"},
		{"critical", 950, 1000, "CRITICAL"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tr := budget.NewTracker(c.budget, "gpt-4o")
			in := c.used
			out := 0
			tr.RecordLLMCall("", "", &in, &out)
			assert.Contains(t, tr.BudgetStatusMessage(), c.wantHas)
		})
	}
}

func TestTrackerCheckpointRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("to_dict/from_dict preserves budget and usage", prop.ForAll(
		func(budgetTokens, inputTokens, outputTokens int) bool {
			if budgetTokens < 0 || inputTokens < 0 || outputTokens < 0 {
				return true
			}
			tr := budget.NewTracker(budgetTokens, "gpt-4o")
			tr.RecordLLMCall("", "", &inputTokens, &outputTokens)

			restored := budget.TrackerFromDict(tr.ToDict())

			return restored.BudgetTokens == tr.BudgetTokens &&
				restored.Usage.InputTokens == tr.Usage.InputTokens &&
				restored.Usage.OutputTokens == tr.Usage.OutputTokens &&
				restored.Usage.TotalTokens == tr.Usage.TotalTokens &&
				restored.RemainingTokens() == tr.RemainingTokens()
		},
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 100_000),
		gen.IntRange(0, 100_000),
	))

	properties.TestingRun(t)
}
