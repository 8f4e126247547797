package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/agentruntime"
	"github.com/polaris-ecosystems/rfp-agent/internal/jobexecutor"
	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
	"github.com/polaris-ecosystems/rfp-agent/internal/memory"
)

func TestAgentRuntimeAdapterSatisfiesInterface(t *testing.T) {
	var _ agentruntime.Memory = (*memory.AgentRuntimeAdapter)(nil)
}

func TestAgentRuntimeAdapterAddCollaborationContextIsRetrievable(t *testing.T) {
	repo := memory.NewRepository(inmem.New(), memory.NewInMemoryIndex())
	adapter := &memory.AgentRuntimeAdapter{Repo: repo}
	ctx := context.Background()

	err := adapter.AddCollaborationContext(ctx, agentruntime.CollaborationContext{
		ParticipantUserIDs: []string{"u1", "u2"},
		Content:            "worked together on the budget section",
		CollaborationType:  "co_edit",
		Success:            true,
		RFPID:              "rfp-1",
		Source:             "slack",
	})
	require.NoError(t, err)

	results, err := repo.GetMemoriesForContext(ctx, memory.QueryParams{
		ScopeIDs: []string{"RFP#rfp-1"}, Types: []memory.Type{memory.TypeCollaborationContext}, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "co_edit", results[0].Metadata["collaborationType"])
}

func TestAgentRuntimeAdapterAddTemporalEventDefaultsScope(t *testing.T) {
	repo := memory.NewRepository(inmem.New(), nil)
	adapter := &memory.AgentRuntimeAdapter{Repo: repo}
	ctx := context.Background()

	err := adapter.AddTemporalEvent(ctx, agentruntime.TemporalEvent{
		Content: "submission window opens", EventAt: time.Now().UTC().AddDate(0, 0, 5), EventType: "milestone", RFPID: "rfp-2",
	})
	require.NoError(t, err)

	events, err := repo.GetUpcomingEvents(ctx, "RFP#rfp-2", 365, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestAgentRuntimeAdapterAddProceduralMemoryAndErrorLog(t *testing.T) {
	repo := memory.NewRepository(inmem.New(), nil)
	adapter := &memory.AgentRuntimeAdapter{Repo: repo}
	ctx := context.Background()

	require.NoError(t, adapter.AddProceduralMemory(ctx, agentruntime.ProceduralMemory{
		RFPID: "rfp-3", Task: "draft narrative", StepCount: 4, Summary: "drafted the narrative in four steps",
	}))
	require.NoError(t, adapter.AddErrorLog(ctx, agentruntime.ErrorLogEntry{
		RFPID: "rfp-3", Task: "draft narrative", StepCount: 2, Error: "tool timeout",
	}))

	results, err := repo.GetMemoriesForContext(ctx, memory.QueryParams{
		ScopeIDs: []string{"RFP#rfp-3"}, Types: []memory.Type{memory.TypeProcedural}, Limit: 10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestJobExecutorAdapterSatisfiesInterface(t *testing.T) {
	var _ jobexecutor.ProceduralMemory = (*memory.JobExecutorAdapter)(nil)
}

func TestJobExecutorAdapterRecordSuccessIsFoundBySimilarSuccessfulJobs(t *testing.T) {
	repo := memory.NewRepository(inmem.New(), memory.NewInMemoryIndex())
	adapter := &memory.JobExecutorAdapter{Repo: repo}
	ctx := context.Background()

	require.NoError(t, adapter.RecordSuccess(ctx, "job-1", "scrape sam.gov for new opportunities",
		[]string{"browser_goto", "browser_extract"}, "scraped sam.gov successfully using the browser tools"))
	require.NoError(t, adapter.RecordFailure(ctx, "job-2", "scrape sam.gov for new opportunities",
		map[string]string{"browser_goto": "timeout"}))

	records, err := adapter.SimilarSuccessfulJobs(ctx, "scrape sam.gov", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"browser_goto", "browser_extract"}, records[0].ToolNames)
}
