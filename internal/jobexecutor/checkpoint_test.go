package jobexecutor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/jobexecutor"
	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore/inmem"
)

func TestCheckpointStoreSaveAndLoadRoundTrip(t *testing.T) {
	store := jobexecutor.NewCheckpointStore(inmem.New())
	ctx := context.Background()

	tracker := budget.NewTracker(10000, "")
	in, out := 100, 50
	tracker.RecordLLMCall("prompt text", "response text", &in, &out)

	cp := jobexecutor.Checkpoint{
		JobID:          "job_1",
		CompletedSteps: []string{"step_1", "step_2"},
		FailedSteps:    []string{"step_3"},
		StepResults:    map[string]string{"step_1": `{"ok":true}`},
		StepErrors:     map[string]string{"step_3": "timeout"},
		StepCounter:    3,
		Budget:         tracker.ToDict(),
	}
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, cp.JobID, loaded.JobID)
	assert.ElementsMatch(t, cp.CompletedSteps, loaded.CompletedSteps)
	assert.ElementsMatch(t, cp.FailedSteps, loaded.FailedSteps)
	assert.Equal(t, cp.StepResults, loaded.StepResults)
	assert.Equal(t, cp.StepErrors, loaded.StepErrors)
	assert.Equal(t, cp.StepCounter, loaded.StepCounter)
	assert.WithinDuration(t, time.Now(), loaded.SavedAt, time.Minute)

	restored := budget.TrackerFromDict(loaded.Budget)
	require.NotNil(t, restored)
	assert.Equal(t, tracker.Usage.InputTokens, restored.Usage.InputTokens)
	assert.Equal(t, tracker.Usage.TotalTokens, restored.Usage.TotalTokens)
}

func TestCheckpointStoreLoadMissingReturnsNotFound(t *testing.T) {
	store := jobexecutor.NewCheckpointStore(inmem.New())
	_, err := store.Load(context.Background(), "no_such_job")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestCheckpointStoreSaveOverwritesPriorCheckpoint(t *testing.T) {
	store := jobexecutor.NewCheckpointStore(inmem.New())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, jobexecutor.Checkpoint{JobID: "job_1", StepCounter: 1}))
	require.NoError(t, store.Save(ctx, jobexecutor.Checkpoint{JobID: "job_1", StepCounter: 5}))

	loaded, err := store.Load(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.StepCounter)
}
