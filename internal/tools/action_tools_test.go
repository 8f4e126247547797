package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/actiongate"
	kvinmem "github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

func TestProposeActionNeverExecutesAndRecordsPendingRow(t *testing.T) {
	registry := tools.NewRegistry()
	repo := actiongate.NewRepository(kvinmem.New())
	require.NoError(t, tools.RegisterActionTools(registry, repo))

	args, err := json.Marshal(map[string]any{
		"kind":    "github_rerun_workflow_run",
		"args":    map[string]any{"repo": "acme/widgets", "runId": 42},
		"summary": "rerun the failed build",
	})
	require.NoError(t, err)

	result := registry.Call(context.Background(), tools.IdentProposeAction, args)
	require.True(t, result.OK)

	out, ok := result.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pending", out["status"])
	assert.NotEmpty(t, out["actionId"])

	inventory := registry.Inventory()
	assert.Len(t, inventory[tools.CategoryAction], 1)
}
