package agentruntime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/agentruntime"
)

func TestMatchMetapromptTemplateStatusUpdate(t *testing.T) {
	analysis, ok := agentruntime.MatchMetapromptTemplate("update status to submitted", "rfp_1")
	require.True(t, ok)
	assert.Equal(t, "update_rfp_state", analysis.Intent)
	assert.Equal(t, agentruntime.ComplexitySimple, analysis.Complexity)
}

func TestMatchMetapromptTemplateRequiresRFPIDForStatusUpdate(t *testing.T) {
	_, ok := agentruntime.MatchMetapromptTemplate("update status to submitted", "")
	assert.False(t, ok)
}

func TestMatchMetapromptTemplateQuery(t *testing.T) {
	analysis, ok := agentruntime.MatchMetapromptTemplate("what is the status of this proposal", "")
	require.True(t, ok)
	assert.Equal(t, "query", analysis.Intent)
}

func TestMatchMetapromptTemplateNoMatch(t *testing.T) {
	_, ok := agentruntime.MatchMetapromptTemplate("the weather is nice today", "")
	assert.False(t, ok)
}

func TestFallbackMetapromptEmptyQuestion(t *testing.T) {
	analysis := agentruntime.FallbackMetaprompt("", "")
	assert.Equal(t, "unknown", analysis.Intent)
}

func TestFallbackMetapromptUpdateIntent(t *testing.T) {
	analysis := agentruntime.FallbackMetaprompt("please change the opportunity state", "")
	assert.Equal(t, "update_rfp_state", analysis.Intent)
	assert.Contains(t, analysis.RequiredTools, "opportunity_load")
	assert.Contains(t, analysis.RequiredTools, "opportunity_patch")
}

func TestFallbackMetapromptMissingRFPID(t *testing.T) {
	analysis := agentruntime.FallbackMetaprompt("tell me about this rfp", "")
	assert.Contains(t, analysis.MissingInfo, "rfp_id")
}

func TestFallbackMetapromptComplexity(t *testing.T) {
	simple := agentruntime.FallbackMetaprompt("what is the status", "rfp_1")
	assert.Equal(t, agentruntime.ComplexitySimple, simple.Complexity)

	complex := agentruntime.FallbackMetaprompt("please analyze and compare all the proposals comprehensively", "")
	assert.Equal(t, agentruntime.ComplexityComplex, complex.Complexity)
}

func TestStepBudgetBandsAndFloor(t *testing.T) {
	simple := agentruntime.MetapromptAnalysis{Complexity: agentruntime.ComplexitySimple, LikelySteps: 1}
	assert.Equal(t, 5, agentruntime.StepBudget(simple, 5))

	moderate := agentruntime.MetapromptAnalysis{Complexity: agentruntime.ComplexityModerate, LikelySteps: 2}
	assert.Equal(t, 8, agentruntime.StepBudget(moderate, 8))

	complexAnalysis := agentruntime.MetapromptAnalysis{Complexity: agentruntime.ComplexityComplex, LikelySteps: 2}
	assert.Equal(t, 15, agentruntime.StepBudget(complexAnalysis, 15))

	// likely_steps+2 would be 12, but it's capped at 2x the requested ceiling.
	likelyStepsFloor := agentruntime.MetapromptAnalysis{Complexity: agentruntime.ComplexitySimple, LikelySteps: 10}
	assert.Equal(t, 10, agentruntime.StepBudget(likelyStepsFloor, 5))
}

func TestStepBudgetDefaultsWhenRequestedIsZero(t *testing.T) {
	analysis := agentruntime.MetapromptAnalysis{Complexity: agentruntime.ComplexitySimple}
	budget := agentruntime.StepBudget(analysis, 0)
	assert.GreaterOrEqual(t, budget, 3)
	assert.LessOrEqual(t, budget, 5)
}
