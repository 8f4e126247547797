package tools_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
	kvinmem "github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

func TestInventoryGroupsToolsByCategory(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterOpportunityTools(registry, opportunity.NewRepository(kvinmem.New())))

	inventory := registry.Inventory()
	assert.Len(t, inventory[tools.CategoryOpportunity], 4)
	assert.Empty(t, inventory[tools.CategoryGitHub])
}
