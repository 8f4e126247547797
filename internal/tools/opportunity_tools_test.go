package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvinmem "github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

func TestOpportunityToolsRoundTrip(t *testing.T) {
	store := kvinmem.New()
	repo := opportunity.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, repo.EnsureStateExists(ctx, "rfp_1"))

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterOpportunityTools(registry, repo))

	patchResult := registry.Call(ctx, tools.IdentOpportunityPatch, mustJSON(t, map[string]any{
		"rfpId": "rfp_1",
		"patch": map[string]any{"summary": "updated via tool"},
	}))
	require.True(t, patchResult.OK)

	loadResult := registry.Call(ctx, tools.IdentOpportunityLoad, mustJSON(t, map[string]any{"rfpId": "rfp_1"}))
	require.True(t, loadResult.OK)
	state, ok := loadResult.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "updated via tool", state["summary"])

	journalResult := registry.Call(ctx, tools.IdentJournalAppend, mustJSON(t, map[string]any{
		"rfpId": "rfp_1", "whatChanged": "bumped the summary",
	}))
	assert.True(t, journalResult.OK)

	eventResult := registry.Call(ctx, tools.IdentEventAppend, mustJSON(t, map[string]any{
		"rfpId": "rfp_1", "type": "state_patched",
	}))
	assert.True(t, eventResult.OK)
}

func TestOpportunityLoadIsReadOnly(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterOpportunityTools(registry, opportunity.NewRepository(kvinmem.New())))

	readNames := map[tools.Ident]bool{}
	for _, tool := range registry.ReadTools() {
		readNames[tool.Name] = true
	}
	assert.True(t, readNames[tools.IdentOpportunityLoad])
	assert.False(t, readNames[tools.IdentOpportunityPatch])
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
