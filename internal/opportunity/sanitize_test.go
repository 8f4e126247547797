package opportunity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
)

func TestSanitizeOpportunityPatchKeepsProvenancedCommitmentOnly(t *testing.T) {
	patch := map[string]any{
		"commitments_append": []any{
			map[string]any{
				"text":       "Team to deliver on 2026-01-15",
				"provenance": map[string]any{"source": "slack_thread", "ref": "C1/T1"},
			},
			map[string]any{"text": "no provenance"},
		},
	}

	sanitized, checks := opportunity.SanitizeOpportunityPatch(patch, nil)

	kept, ok := sanitized["commitments_append"].([]any)
	require.True(t, ok)
	assert.Len(t, kept, 1)

	var failCount, passCount int
	for _, c := range checks {
		if c.Status == opportunity.PolicyCheckFail {
			failCount++
		}
		if c.Status == opportunity.PolicyCheckPass {
			passCount++
		}
	}
	assert.Equal(t, 1, failCount)
	assert.Equal(t, 1, passCount)
}

func TestSanitizeOpportunityPatchDropsAllWhenNoneHaveProvenance(t *testing.T) {
	patch := map[string]any{
		"commitments_append": []any{
			map[string]any{"text": "a"},
			map[string]any{"text": "b"},
		},
	}

	sanitized, checks := opportunity.SanitizeOpportunityPatch(patch, nil)

	_, present := sanitized["commitments_append"]
	assert.False(t, present)
	require.Len(t, checks, 1)
	assert.Equal(t, opportunity.PolicyCheckFail, checks[0].Status)
}

func TestSanitizeOpportunityPatchPassesThroughOtherKeys(t *testing.T) {
	patch := map[string]any{"summary": "updated summary"}
	sanitized, checks := opportunity.SanitizeOpportunityPatch(patch, nil)
	assert.Equal(t, "updated summary", sanitized["summary"])
	assert.Empty(t, checks)
}

func TestSanitizeOpportunityPatchRejectsNonListCommitments(t *testing.T) {
	patch := map[string]any{"commitments_append": "not-a-list"}
	sanitized, checks := opportunity.SanitizeOpportunityPatch(patch, nil)
	_, present := sanitized["commitments_append"]
	assert.False(t, present)
	require.Len(t, checks, 1)
	assert.Equal(t, opportunity.PolicyCheckFail, checks[0].Status)
}
