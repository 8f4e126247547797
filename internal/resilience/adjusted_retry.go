package resilience

// ReasoningEffort is the agent runtime's per-attempt effort ladder, stepped
// down on degraded retries (spec sections 4 and 7; supplemented feature 3).
type ReasoningEffort string

const (
	ReasoningEffortHigh   ReasoningEffort = "high"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortLow    ReasoningEffort = "low"
)

// AdjustedParams is the set of degraded-retry parameters an agent run or job
// step applies on its next attempt after a should-degrade failure.
type AdjustedParams struct {
	ReasoningEffort ReasoningEffort
	MaxSteps        int
	MaxTokens       int
}

// AdjustedRetryParams decides whether a failed attempt should retry with
// degraded parameters, and if so computes the ladder: reasoning effort steps
// down (high -> medium -> low), while MaxSteps and MaxTokens shrink with
// each attempt. It stops suggesting retries past maxAdjustments attempts or
// when the error's classification doesn't call for degradation.
func AdjustedRetryParams(err error, attempt int, maxAdjustments int) (bool, AdjustedParams) {
	if maxAdjustments <= 0 {
		maxAdjustments = 2
	}
	if attempt > maxAdjustments {
		return false, AdjustedParams{}
	}

	classification := Classify(err)
	if !classification.ShouldDegrade {
		return false, AdjustedParams{}
	}

	adjusted := AdjustedParams{
		MaxSteps:  maxInt(3, 10-(attempt*2)),
		MaxTokens: maxInt(500, 2000-(attempt*500)),
	}
	switch attempt {
	case 1:
		adjusted.ReasoningEffort = ReasoningEffortMedium
	case 2:
		adjusted.ReasoningEffort = ReasoningEffortLow
	}
	return true, adjusted
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
