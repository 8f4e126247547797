package jobexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
)

const checkpointSK = "CHECKPOINT"

func checkpointPK(jobID string) string { return fmt.Sprintf("JOB#%s", jobID) }

// Checkpoint is the durable snapshot an orchestrator saves periodically and
// restores on resume: which steps have finished (and how), the step
// counter, and the budget tracker's serialized state.
type Checkpoint struct {
	JobID          string            `json:"jobId"`
	CompletedSteps []string          `json:"completedSteps"`
	FailedSteps    []string          `json:"failedSteps"`
	StepResults    map[string]string `json:"stepResults"`
	StepErrors     map[string]string `json:"stepErrors"`
	StepCounter    int               `json:"stepCounter"`
	Budget         map[string]any    `json:"budget"`
	SavedAt        time.Time         `json:"savedAt"`
}

// CheckpointStore persists and loads Checkpoint rows, one per job.
type CheckpointStore struct {
	store kvstore.Store
}

// NewCheckpointStore constructs a CheckpointStore over store.
func NewCheckpointStore(store kvstore.Store) *CheckpointStore {
	return &CheckpointStore{store: store}
}

// Save writes the checkpoint, overwriting any prior checkpoint for the job.
func (s *CheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	cp.SavedAt = time.Now().UTC()
	encoded, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("jobexecutor: encode checkpoint %s: %w", cp.JobID, err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(encoded, &attrs); err != nil {
		return fmt.Errorf("jobexecutor: decode checkpoint attributes %s: %w", cp.JobID, err)
	}
	item := kvstore.Item{PK: checkpointPK(cp.JobID), SK: checkpointSK, Attributes: attrs}
	if err := s.store.Put(ctx, item, kvstore.PutOptions{}); err != nil {
		return fmt.Errorf("jobexecutor: save checkpoint %s: %w", cp.JobID, err)
	}
	return nil
}

// Load reads the latest checkpoint for jobID. Returns kvstore.ErrNotFound
// if the job has never been checkpointed.
func (s *CheckpointStore) Load(ctx context.Context, jobID string) (Checkpoint, error) {
	item, err := s.store.Get(ctx, kvstore.Key{PK: checkpointPK(jobID), SK: checkpointSK})
	if err != nil {
		return Checkpoint{}, err
	}
	encoded, err := json.Marshal(item.Attributes)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("jobexecutor: encode checkpoint attributes %s: %w", jobID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(encoded, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("jobexecutor: decode checkpoint %s: %w", jobID, err)
	}
	return cp, nil
}

// checkpointPolicy decides when a running orchestrator should checkpoint:
// every N completed steps, or every T elapsed since the last checkpoint,
// whichever comes first (spec default: N=10 steps, T=300s).
type checkpointPolicy struct {
	everySteps int
	everyDur   time.Duration
}

func defaultCheckpointPolicy() checkpointPolicy {
	return checkpointPolicy{everySteps: 10, everyDur: 300 * time.Second}
}

func (p checkpointPolicy) due(stepsSinceLast int, sinceLast time.Duration) bool {
	if p.everySteps > 0 && stepsSinceLast >= p.everySteps {
		return true
	}
	if p.everyDur > 0 && sinceLast >= p.everyDur {
		return true
	}
	return false
}

// budgetToCheckpoint and budgetFromCheckpoint round-trip a budget.Tracker
// through the same map[string]any shape Checkpoint.Budget stores, reusing
// the tracker's own checkpoint dict rather than a bespoke encoding.
func budgetToCheckpoint(t *budget.Tracker) map[string]any {
	if t == nil {
		return nil
	}
	return t.ToDict()
}

func budgetFromCheckpoint(data map[string]any) *budget.Tracker {
	if len(data) == 0 {
		return nil
	}
	return budget.TrackerFromDict(data)
}
