package tools_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvinmem "github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/memory"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

func TestMemoryToolsCreateAndRetrieveForContext(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(kvinmem.New(), nil)
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterMemoryTools(registry, repo))

	createResult := registry.Call(ctx, tools.IdentMemoryCreate, mustJSON(t, map[string]any{
		"memoryType": "SEMANTIC",
		"scopeId":    "rfp-1",
		"content":    "the client prefers fixed-price contracts",
	}))
	require.True(t, createResult.OK)
	created := createResult.Result.(map[string]any)
	assert.NotEmpty(t, created["memoryId"])

	getResult := registry.Call(ctx, tools.IdentMemoryGetForContext, mustJSON(t, map[string]any{
		"scopeIds": []string{"rfp-1"},
	}))
	require.True(t, getResult.OK)
	items, ok := getResult.Result.([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestMemoryToolsAddAndListRelationship(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(kvinmem.New(), nil)
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterMemoryTools(registry, repo))

	first, err := repo.CreateMemory(ctx, memory.CreateInput{Type: memory.TypeEpisodic, ScopeID: "rfp-1", Content: "drafted section A"})
	require.NoError(t, err)
	second, err := repo.CreateMemory(ctx, memory.CreateInput{Type: memory.TypeEpisodic, ScopeID: "rfp-1", Content: "drafted section B"})
	require.NoError(t, err)

	relResult := registry.Call(ctx, tools.IdentMemoryAddRelationship, mustJSON(t, map[string]any{
		"fromId":           second.ID,
		"toId":             first.ID,
		"relationshipType": "temporal_sequence",
	}))
	require.True(t, relResult.OK)

	listResult := registry.Call(ctx, tools.IdentMemoryListRelationships, mustJSON(t, map[string]any{"fromId": second.ID}))
	require.True(t, listResult.OK)
	rels, ok := listResult.Result.([]any)
	require.True(t, ok)
	assert.Len(t, rels, 1)
}

func TestMemoryToolsAddTemporalEventAndGetUpcoming(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(kvinmem.New(), nil)
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterMemoryTools(registry, repo))

	addResult := registry.Call(ctx, tools.IdentMemoryAddTemporalEvent, mustJSON(t, map[string]any{
		"scopeId": "rfp-1",
		"content": "proposal due",
		"eventAt": time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339),
	}))
	require.True(t, addResult.OK)

	upcomingResult := registry.Call(ctx, tools.IdentMemoryGetUpcomingEvents, mustJSON(t, map[string]any{
		"scopeId":   "rfp-1",
		"daysAhead": 365,
	}))
	require.True(t, upcomingResult.OK)
	events, ok := upcomingResult.Result.([]any)
	require.True(t, ok)
	assert.Len(t, events, 1)
}

func TestMemoryWriteToolsAreOperatorOnly(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterMemoryTools(registry, memory.NewRepository(kvinmem.New(), nil)))

	readNames := make(map[tools.Ident]bool)
	for _, tool := range registry.ReadTools() {
		readNames[tool.Name] = true
	}
	assert.False(t, readNames[tools.IdentMemoryCreate])
	assert.True(t, readNames[tools.IdentMemoryGetForContext])
}
