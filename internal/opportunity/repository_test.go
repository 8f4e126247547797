package opportunity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/opportunity"
)

func TestEnsureStateExistsIsIdempotent(t *testing.T) {
	store := inmem.New()
	repo := opportunity.NewRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.EnsureStateExists(ctx, "rfp_1"))
	require.NoError(t, repo.EnsureStateExists(ctx, "rfp_1"))

	state, err := repo.GetState(ctx, "rfp_1")
	require.NoError(t, err)
	assert.Equal(t, opportunity.StageNew, state.Stage)
	assert.Equal(t, 1, state.Version)
}

func TestGetStateMissingReturnsError(t *testing.T) {
	store := inmem.New()
	repo := opportunity.NewRepository(store)
	_, err := repo.GetState(context.Background(), "missing")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestPatchStateBumpsVersionAndAdvancesUpdatedAt(t *testing.T) {
	store := inmem.New()
	repo := opportunity.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, repo.EnsureStateExists(ctx, "rfp_1"))
	before, err := repo.GetState(ctx, "rfp_1")
	require.NoError(t, err)

	result, err := repo.PatchState(ctx, "rfp_1", map[string]any{"summary": "new summary"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "new summary", result.State.Summary)
	assert.Equal(t, before.Version+1, result.State.Version)
	assert.True(t, result.State.UpdatedAt.After(before.UpdatedAt) || result.State.UpdatedAt.Equal(before.UpdatedAt))
}

func TestPatchStateKeepsOnlyProvenancedCommitmentsAndReportsPolicyCheck(t *testing.T) {
	store := inmem.New()
	repo := opportunity.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, repo.EnsureStateExists(ctx, "rfp_b"))

	patch := map[string]any{
		"commitments_append": []any{
			map[string]any{
				"text":       "Team to deliver on 2026-01-15",
				"provenance": map[string]any{"source": "slack_thread", "ref": "C1/T1"},
			},
			map[string]any{"text": "no provenance"},
		},
	}

	result, err := repo.PatchState(ctx, "rfp_b", patch, nil)
	require.NoError(t, err)

	require.Len(t, result.State.Commitments, 1)
	assert.Equal(t, "Team to deliver on 2026-01-15", result.State.Commitments[0].Text)

	var sawDropped bool
	for _, c := range result.PolicyChecks {
		if c.Status == opportunity.PolicyCheckFail {
			sawDropped = true
		}
	}
	assert.True(t, sawDropped)
}

func TestCommitmentsNeverShrinkAcrossPatches(t *testing.T) {
	store := inmem.New()
	repo := opportunity.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, repo.EnsureStateExists(ctx, "rfp_c"))

	first, err := repo.PatchState(ctx, "rfp_c", map[string]any{
		"commitments_append": []any{
			map[string]any{"text": "first", "provenance": map[string]any{"source": "slack"}},
		},
	}, nil)
	require.NoError(t, err)
	require.Len(t, first.State.Commitments, 1)

	second, err := repo.PatchState(ctx, "rfp_c", map[string]any{"summary": "unrelated change"}, nil)
	require.NoError(t, err)
	assert.Len(t, second.State.Commitments, 1)
}

func TestAppendEntryIsTimeOrderedAndListable(t *testing.T) {
	store := inmem.New()
	repo := opportunity.NewRepository(store)
	ctx := context.Background()

	_, err := repo.AppendEntry(ctx, "rfp_1", opportunity.JournalEntry{WhatChanged: "first"})
	require.NoError(t, err)
	_, err = repo.AppendEntry(ctx, "rfp_1", opportunity.JournalEntry{WhatChanged: "second"})
	require.NoError(t, err)

	entries, err := repo.ListJournal(ctx, "rfp_1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].WhatChanged)
	assert.Equal(t, "second", entries[1].WhatChanged)
}

func TestThreadBindingRoundTrips(t *testing.T) {
	store := inmem.New()
	repo := opportunity.NewRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.SetBinding(ctx, "C1", "T1", "rfp_1", "user_42"))

	binding, err := repo.GetBinding(ctx, "C1", "T1")
	require.NoError(t, err)
	assert.Equal(t, "rfp_1", binding.RFPID)
	assert.Equal(t, "user_42", binding.BoundBy)
}

func TestCreateAndGetChangeProposal(t *testing.T) {
	store := inmem.New()
	repo := opportunity.NewRepository(store)
	ctx := context.Background()

	created, err := repo.CreateChangeProposal(ctx, opportunity.ChangeProposal{
		Title: "Fix budget parsing", Patch: "--- a\n+++ b\n", CreatedBy: "agent",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.GetChangeProposal(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix budget parsing", got.Title)
}
