// Package jobqueue implements the durable job record and its status
// machine (spec section 4.9): idempotent creation, conditional
// queued->running transitions, progress updates, and the due-job claim a
// worker loop polls against.
package jobqueue

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
)

// Status is a Job's position in its state machine.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is the durable record of one unit of background work.
type Job struct {
	JobID          string         `json:"jobId"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Type           string         `json:"type"`
	Payload        map[string]any `json:"payload"`
	Status         Status         `json:"status"`
	Progress       int            `json:"progress"`
	Step           string         `json:"step"`
	Message        string         `json:"message"`
	Result         any            `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	DueAt          time.Time      `json:"dueAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// maxErrorLen bounds a stored failure message, the same 800-character bound
// toolerrors.Fail applies to tool failure messages.
const maxErrorLen = 800

const (
	skProfile          = "PROFILE"
	gsi1PKDueJobs      = "JOB_QUEUE"
	idempotencyKeySalt = "jobqueue.idempotency"
)

func jobPK(jobID string) string { return fmt.Sprintf("JOB#%s", jobID) }

// idempotencyPK hashes the caller-supplied key so an arbitrarily long or
// characterful key still yields a bounded, safe partition key.
func idempotencyPK(key string) string {
	sum := sha256.Sum256([]byte(idempotencyKeySalt + "#" + key))
	return fmt.Sprintf("JOB_IDEMPOTENCY#%s", hex.EncodeToString(sum[:]))
}

func newJobID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Repository is the only component allowed to write Job rows.
type Repository struct {
	store kvstore.Store
}

// NewRepository constructs a Repository over store.
func NewRepository(store kvstore.Store) *Repository {
	return &Repository{store: store}
}

// CreateJob creates a new job keyed by idempotencyKey. If a job already
// exists for that key, the existing job is returned instead of creating a
// duplicate (spec section 4.9: idempotent creation via a transactional
// idempotency row, first-write-wins).
func (r *Repository) CreateJob(ctx context.Context, idempotencyKey, jobType string, payload map[string]any, dueAt time.Time) (Job, error) {
	if existing, err := r.getByIdempotencyKey(ctx, idempotencyKey); err == nil {
		return existing, nil
	} else if err != kvstore.ErrNotFound {
		return Job{}, err
	}

	job := Job{
		JobID:          newJobID(),
		IdempotencyKey: idempotencyKey,
		Type:           jobType,
		Payload:        payload,
		Status:         StatusQueued,
		CreatedAt:      time.Now().UTC(),
		DueAt:          dueAt,
	}
	jobItem, err := jobToItem(job)
	if err != nil {
		return Job{}, err
	}
	idempotencyItem := kvstore.Item{
		PK:         idempotencyPK(idempotencyKey),
		SK:         skProfile,
		Attributes: map[string]any{"jobId": job.JobID},
	}

	err = r.store.Transact(ctx, kvstore.TransactWrite{
		Puts: []kvstore.TransactPut{
			{Item: idempotencyItem, IfNotExists: true},
			{Item: jobItem},
		},
	})
	if err == nil {
		return job, nil
	}
	if err != kvstore.ErrConditionFailed {
		return Job{}, fmt.Errorf("jobqueue: create job: %w", err)
	}

	// Lost the race to a concurrent creator using the same key: the job it
	// created is the canonical result.
	existing, getErr := r.getByIdempotencyKey(ctx, idempotencyKey)
	if getErr != nil {
		return Job{}, fmt.Errorf("jobqueue: create job: idempotency row exists but job lookup failed: %w", getErr)
	}
	return existing, nil
}

func (r *Repository) getByIdempotencyKey(ctx context.Context, idempotencyKey string) (Job, error) {
	item, err := r.store.Get(ctx, kvstore.Key{PK: idempotencyPK(idempotencyKey), SK: skProfile})
	if err != nil {
		return Job{}, err
	}
	jobID, _ := item.Attributes["jobId"].(string)
	if jobID == "" {
		return Job{}, kvstore.ErrNotFound
	}
	return r.GetJob(ctx, jobID)
}

// GetJob reads the job row for jobID.
func (r *Repository) GetJob(ctx context.Context, jobID string) (Job, error) {
	item, err := r.store.Get(ctx, kvstore.Key{PK: jobPK(jobID), SK: skProfile})
	if err != nil {
		return Job{}, fmt.Errorf("jobqueue: get job %s: %w", jobID, err)
	}
	return itemToJob(item)
}

// TryMarkRunning conditionally transitions jobID from queued to running.
// Returns false (no error) if another worker already claimed it.
func (r *Repository) TryMarkRunning(ctx context.Context, jobID string) (bool, error) {
	now := time.Now().UTC()
	err := r.store.Update(ctx, kvstore.Key{PK: jobPK(jobID), SK: skProfile},
		map[string]any{"status": string(StatusRunning), "startedAt": now.Format(time.RFC3339Nano)},
		nil,
		kvstore.UpdateOptions{
			ConditionExpression: "status = :expectedStatus",
			ExpressionValues:    map[string]any{":expectedStatus": string(StatusQueued)},
		},
	)
	if err == nil {
		return true, nil
	}
	if err == kvstore.ErrConditionFailed {
		return false, nil
	}
	return false, fmt.Errorf("jobqueue: try mark running %s: %w", jobID, err)
}

// UpdateProgress is safe in any job state (spec section 4.9).
func (r *Repository) UpdateProgress(ctx context.Context, jobID string, percent int, step, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	err := r.store.Update(ctx, kvstore.Key{PK: jobPK(jobID), SK: skProfile},
		map[string]any{"progress": percent, "step": step, "message": message},
		nil, kvstore.UpdateOptions{},
	)
	if err != nil {
		return fmt.Errorf("jobqueue: update progress %s: %w", jobID, err)
	}
	return nil
}

// CompleteJob sets status=completed, result, progress=100.
func (r *Repository) CompleteJob(ctx context.Context, jobID string, result any) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("jobqueue: encode result %s: %w", jobID, err)
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return fmt.Errorf("jobqueue: decode result %s: %w", jobID, err)
	}
	now := time.Now().UTC()
	err = r.store.Update(ctx, kvstore.Key{PK: jobPK(jobID), SK: skProfile},
		map[string]any{
			"status":      string(StatusCompleted),
			"result":      decoded,
			"progress":    100,
			"completedAt": now.Format(time.RFC3339Nano),
		},
		nil, kvstore.UpdateOptions{},
	)
	if err != nil {
		return fmt.Errorf("jobqueue: complete job %s: %w", jobID, err)
	}
	return nil
}

// FailJob sets status=failed, error (bounded), progress=100.
func (r *Repository) FailJob(ctx context.Context, jobID, errMsg string) error {
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}
	now := time.Now().UTC()
	err := r.store.Update(ctx, kvstore.Key{PK: jobPK(jobID), SK: skProfile},
		map[string]any{
			"status":      string(StatusFailed),
			"error":       errMsg,
			"progress":    100,
			"completedAt": now.Format(time.RFC3339Nano),
		},
		nil, kvstore.UpdateOptions{},
	)
	if err != nil {
		return fmt.Errorf("jobqueue: fail job %s: %w", jobID, err)
	}
	return nil
}

// FailJobWithResult is FailJob plus a partial result payload, for the Job
// Executor's termination semantics (spec section 4.8): a failed run still
// reports completed_steps/failed_steps/partial_results/token_usage, not
// just the error string.
func (r *Repository) FailJobWithResult(ctx context.Context, jobID, errMsg string, result any) error {
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("jobqueue: encode result %s: %w", jobID, err)
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return fmt.Errorf("jobqueue: decode result %s: %w", jobID, err)
	}
	now := time.Now().UTC()
	err = r.store.Update(ctx, kvstore.Key{PK: jobPK(jobID), SK: skProfile},
		map[string]any{
			"status":      string(StatusFailed),
			"error":       errMsg,
			"result":      decoded,
			"progress":    100,
			"completedAt": now.Format(time.RFC3339Nano),
		},
		nil, kvstore.UpdateOptions{},
	)
	if err != nil {
		return fmt.Errorf("jobqueue: fail job with result %s: %w", jobID, err)
	}
	return nil
}

// CancelJob marks a job cancelled regardless of its current state, for an
// operator-initiated stop.
func (r *Repository) CancelJob(ctx context.Context, jobID string) error {
	err := r.store.Update(ctx, kvstore.Key{PK: jobPK(jobID), SK: skProfile},
		map[string]any{"status": string(StatusCancelled)},
		nil, kvstore.UpdateOptions{},
	)
	if err != nil {
		return fmt.Errorf("jobqueue: cancel job %s: %w", jobID, err)
	}
	return nil
}

// ListDueJobs returns queued jobs whose DueAt has passed, oldest-due first.
// It queries the due-time index and filters by current status, since a
// status transition (TryMarkRunning) only touches the item's attributes,
// not its index projection — matching a sparse-status-GSI's eventual
// consistency rather than pretending the index is authoritative.
func (r *Repository) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	out, err := r.store.Query(ctx, kvstore.QueryInput{
		IndexGSI1: true,
		PKValue:   gsi1PKDueJobs,
		Limit:     0, // filter below; a status-stale index entry must not consume the caller's limit
	})
	if err != nil {
		return nil, fmt.Errorf("jobqueue: list due jobs: %w", err)
	}

	due := make([]Job, 0, len(out.Items))
	for _, item := range out.Items {
		job, err := itemToJob(item)
		if err != nil {
			return nil, err
		}
		if job.Status != StatusQueued {
			continue
		}
		if job.DueAt.After(now) {
			continue
		}
		due = append(due, job)
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}

func jobToItem(job Job) (kvstore.Item, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return kvstore.Item{}, fmt.Errorf("jobqueue: encode job %s: %w", job.JobID, err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return kvstore.Item{}, fmt.Errorf("jobqueue: decode job attributes %s: %w", job.JobID, err)
	}
	return kvstore.Item{
		PK:         jobPK(job.JobID),
		SK:         skProfile,
		GSI1PK:     gsi1PKDueJobs,
		GSI1SK:     fmt.Sprintf("%s#%s", job.DueAt.UTC().Format(time.RFC3339Nano), job.JobID),
		Attributes: attrs,
	}, nil
}

func itemToJob(item kvstore.Item) (Job, error) {
	raw, err := json.Marshal(item.Attributes)
	if err != nil {
		return Job{}, fmt.Errorf("jobqueue: encode job attributes: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("jobqueue: decode job: %w", err)
	}
	return job, nil
}
