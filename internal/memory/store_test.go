package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/memory"
)

func TestCreateMemoryAutoExtractsKeywordsAndIsRetrievableByID(t *testing.T) {
	store := inmem.New()
	repo := memory.NewRepository(store, memory.NewInMemoryIndex())
	ctx := context.Background()

	m, err := repo.CreateMemory(ctx, memory.CreateInput{
		Type:    memory.TypeEpisodic,
		ScopeID: "USER#u1",
		Content: "Discussed the submission deadline for the downtown RFP",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Contains(t, m.Keywords, "deadline")

	fetched, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Content, fetched.Content)
}

func TestGetByIDMissingReturnsNotFound(t *testing.T) {
	repo := memory.NewRepository(inmem.New(), nil)
	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestGetMemoriesForContextScoresByKeywordOverlapAndRecency(t *testing.T) {
	store := inmem.New()
	repo := memory.NewRepository(store, memory.NewInMemoryIndex())
	ctx := context.Background()

	_, err := repo.CreateMemory(ctx, memory.CreateInput{
		Type: memory.TypeSemantic, ScopeID: "USER#u1", Content: "client prefers weekly status updates",
	})
	require.NoError(t, err)
	relevant, err := repo.CreateMemory(ctx, memory.CreateInput{
		Type: memory.TypeSemantic, ScopeID: "USER#u1", Content: "budget ceiling discussion for the proposal",
	})
	require.NoError(t, err)

	results, err := repo.GetMemoriesForContext(ctx, memory.QueryParams{
		ScopeIDs: []string{"USER#u1"},
		Query:    "budget ceiling",
		Limit:    5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, relevant.ID, results[0].ID)
}

func TestGetMemoriesForContextWithoutQueryReturnsMostRecentFirst(t *testing.T) {
	store := inmem.New()
	repo := memory.NewRepository(store, nil)
	ctx := context.Background()

	first, err := repo.CreateMemory(ctx, memory.CreateInput{Type: memory.TypeEpisodic, ScopeID: "USER#u1", Content: "first turn happened"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := repo.CreateMemory(ctx, memory.CreateInput{Type: memory.TypeEpisodic, ScopeID: "USER#u1", Content: "second turn happened"})
	require.NoError(t, err)

	results, err := repo.GetMemoriesForContext(ctx, memory.QueryParams{ScopeIDs: []string{"USER#u1"}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, second.ID, results[0].ID)
	assert.Equal(t, first.ID, results[1].ID)
}

func TestAddRelationshipRequiresBothEndpointsToExist(t *testing.T) {
	store := inmem.New()
	repo := memory.NewRepository(store, nil)
	ctx := context.Background()

	a, err := repo.CreateMemory(ctx, memory.CreateInput{Type: memory.TypeEpisodic, ScopeID: "USER#u1", Content: "first memory about the rfp kickoff"})
	require.NoError(t, err)

	err = repo.AddRelationship(ctx, memory.Relationship{FromID: a.ID, ToID: "missing", Type: memory.RelationReferences})
	assert.Error(t, err)

	b, err := repo.CreateMemory(ctx, memory.CreateInput{Type: memory.TypeEpisodic, ScopeID: "USER#u1", Content: "second memory about the rfp follow up"})
	require.NoError(t, err)

	require.NoError(t, repo.AddRelationship(ctx, memory.Relationship{FromID: a.ID, ToID: b.ID, Type: memory.RelationTemporalSequence, Bidirectional: true}))

	forward, err := repo.ListRelationships(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, forward, 1)
	assert.Equal(t, b.ID, forward[0].ToID)

	backward, err := repo.ListRelationships(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, backward, 1)
	assert.Equal(t, a.ID, backward[0].ToID)
}

func TestAddTemporalEventMemoryTagsUpcomingOrPast(t *testing.T) {
	store := inmem.New()
	repo := memory.NewRepository(store, nil)
	ctx := context.Background()

	future, err := repo.AddTemporalEventMemory(ctx, memory.AddTemporalEventInput{
		ScopeID: "RFP#r1", Content: "submission deadline", EventAt: time.Now().UTC().AddDate(0, 0, 5), EventType: "deadline",
	})
	require.NoError(t, err)
	assert.Contains(t, future.Tags, "upcoming")

	past, err := repo.AddTemporalEventMemory(ctx, memory.AddTemporalEventInput{
		ScopeID: "RFP#r1", Content: "kickoff call", EventAt: time.Now().UTC().AddDate(0, 0, -5), EventType: "meeting",
	})
	require.NoError(t, err)
	assert.Contains(t, past.Tags, "past")
}

func TestGetUpcomingEventsFiltersToWindowAndSortsAscending(t *testing.T) {
	store := inmem.New()
	repo := memory.NewRepository(store, nil)
	ctx := context.Background()

	far, err := repo.AddTemporalEventMemory(ctx, memory.AddTemporalEventInput{
		ScopeID: "RFP#r1", Content: "final review", EventAt: time.Now().UTC().AddDate(0, 0, 20), EventType: "review",
	})
	require.NoError(t, err)
	near, err := repo.AddTemporalEventMemory(ctx, memory.AddTemporalEventInput{
		ScopeID: "RFP#r1", Content: "questions due", EventAt: time.Now().UTC().AddDate(0, 0, 3), EventType: "deadline",
	})
	require.NoError(t, err)
	_, err = repo.AddTemporalEventMemory(ctx, memory.AddTemporalEventInput{
		ScopeID: "RFP#r1", Content: "too far out", EventAt: time.Now().UTC().AddDate(0, 0, 60), EventType: "milestone",
	})
	require.NoError(t, err)

	upcoming, err := repo.GetUpcomingEvents(ctx, "RFP#r1", 30, 10)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, near.ID, upcoming[0].ID)
	assert.Equal(t, far.ID, upcoming[1].ID)
}
