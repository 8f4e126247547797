// Package queue adapts SQS for handing completed job IDs to worker
// processes (spec section 6). Enqueuing is best-effort notification only:
// the durable source of truth for job status lives in internal/jobqueue's
// kvstore rows, so a lost or duplicated SQS message never loses work, only
// delays a worker's pickup of it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingJobID is returned when an empty job ID is enqueued.
var ErrMissingJobID = errors.New("queue: job id is required")

// Producer enqueues job IDs for worker pickup.
type Producer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// FIFOOptions configures per-message FIFO queue attributes. Leave zero for
// a standard (non-FIFO) queue.
type FIFOOptions struct {
	// MessageGroupID, when non-empty, is sent as the SQS MessageGroupId
	// (required by FIFO queues; messages in the same group are delivered
	// in order).
	MessageGroupID string
	// DeduplicationID, when non-empty, is sent as the SQS
	// MessageDeduplicationId. If empty and MessageGroupID is set, the
	// job ID itself is used so re-enqueuing the same job within the
	// dedup window is a no-op.
	DeduplicationID string
}

func validateJobID(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", ErrMissingJobID
	}
	return jobID, nil
}

func messageBody(jobID string) string {
	return fmt.Sprintf(`{"jobId":%q}`, jobID)
}
