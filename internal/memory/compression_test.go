package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/memory"
)

type erroringSummarizer struct{}

func (erroringSummarizer) Summarize(context.Context, string, memory.Type) (string, error) {
	return "", errors.New("summarizer unavailable")
}

// seedOldMemory writes a memory row directly so its createdAt can be backdated
// past the compression cutoff; Repository.CreateMemory always stamps "now".
// The row is re-keyed under the backdated sort key (same layout as the
// repository's memSK) so lookups derived from createdAt still find it.
func seedOldMemory(t *testing.T, store kvstore.Store, index memory.KeywordIndex, scopeID, content string, age time.Duration) memory.Memory {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRepository(store, index)
	m, err := repo.CreateMemory(ctx, memory.CreateInput{
		Type: memory.TypeEpisodic, ScopeID: scopeID, Content: content,
	})
	require.NoError(t, err)

	out, err := store.Query(ctx, kvstore.QueryInput{IndexGSI1: true, PKValue: "MEMID#" + m.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	item := out.Items[0]
	require.NoError(t, store.Delete(ctx, kvstore.Key{PK: item.PK, SK: item.SK}))

	backdated := m.CreatedAt.Add(-age)
	item.SK = string(m.Type) + "#" + backdated.UTC().Format("2006-01-02T15:04:05.000000000Z07:00") + "#" + m.ID
	item.Attributes["createdAt"] = backdated.Format(time.RFC3339Nano)
	require.NoError(t, store.Put(ctx, item, kvstore.PutOptions{}))
	m.CreatedAt = backdated
	return m
}

func TestCompressFallsBackToTruncationWhenSummarizerFails(t *testing.T) {
	store := inmem.New()
	index := memory.NewInMemoryIndex()
	repo := memory.NewRepository(store, index)
	ctx := context.Background()

	seedOldMemory(t, store, index, "USER#u1", "first old memory about the rfp kickoff call", 40*24*time.Hour)
	seedOldMemory(t, store, index, "USER#u1", "second old memory about the proposal budget", 35*24*time.Hour)

	result, err := repo.Compress(ctx, memory.CompressOptions{
		ScopeID: "USER#u1", Type: memory.TypeEpisodic, DaysOld: 30, Summarizer: erroringSummarizer{},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CompressedCount)
	require.NotNil(t, result.NewMemory)
	assert.True(t, result.NewMemory.Compressed)
	assert.Len(t, result.NewMemory.OriginalMemoryIDs, 2)
}

func TestCompressSkipsWhenFewerThanTwoCandidates(t *testing.T) {
	store := inmem.New()
	index := memory.NewInMemoryIndex()
	repo := memory.NewRepository(store, index)
	ctx := context.Background()

	seedOldMemory(t, store, index, "USER#u2", "only one old memory", 40*24*time.Hour)

	result, err := repo.Compress(ctx, memory.CompressOptions{ScopeID: "USER#u2", Type: memory.TypeEpisodic, DaysOld: 30})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CompressedCount)
	assert.Nil(t, result.NewMemory)
}

func TestCompressSchedulesOriginalsForDeletionAndRemovesFromIndex(t *testing.T) {
	store := inmem.New()
	index := memory.NewInMemoryIndex()
	repo := memory.NewRepository(store, index)
	ctx := context.Background()

	a := seedOldMemory(t, store, index, "USER#u3", "alpha old memory about a kickoff", 40*24*time.Hour)
	seedOldMemory(t, store, index, "USER#u3", "bravo old memory about a budget", 35*24*time.Hour)

	_, err := repo.Compress(ctx, memory.CompressOptions{ScopeID: "USER#u3", Type: memory.TypeEpisodic, DaysOld: 30})
	require.NoError(t, err)

	refetched, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, refetched.ExpiresAt)
	assert.True(t, refetched.ExpiresAt.After(time.Now().UTC()))

	ids, err := index.Search(ctx, []string{"USER#u3"}, memory.TypeEpisodic, "kickoff", 10)
	require.NoError(t, err)
	assert.NotContains(t, ids, a.ID)
}
