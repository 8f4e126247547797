package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
)

// Handler executes one claimed job. A handler is responsible for driving
// the job to a terminal state itself (repo.CompleteJob/FailJob/
// FailJobWithResult) so it can attach progress updates, partial results, or
// a bounded error along the way; a handler that merely returns an error is
// still brought to StatusFailed by the worker loop as a fallback.
type Handler func(ctx context.Context, repo *Repository, job Job) error

// Worker polls for due jobs and dispatches each to the handler registered
// for its Type in Handlers (spec section 4.9). The only handler in this
// tree is internal/jobexecutor's NewAgentExecuteHandler for
// `ai_agent_execute`; there are no handlers for `opportunity_maintenance`,
// `slack_nudge`, the self-modify PR pipeline, or digest reports, and a job
// whose Type has no registered handler is marked failed.
type Worker struct {
	Jobs     *Repository
	Handlers map[string]Handler
	Logger   telemetry.Logger

	// PollInterval is how often Run polls for due jobs. Defaults to 5s.
	PollInterval time.Duration
	// BatchSize bounds how many due jobs are claimed per poll. Defaults to 10.
	BatchSize int
}

// NewWorker constructs a Worker with the default poll interval and batch
// size.
func NewWorker(jobs *Repository, handlers map[string]Handler, logger telemetry.Logger) *Worker {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Worker{
		Jobs:         jobs,
		Handlers:     handlers,
		Logger:       logger,
		PollInterval: 5 * time.Second,
		BatchSize:    10,
	}
}

// Run polls for due jobs until ctx is cancelled. Each claimed job is
// dispatched in its own goroutine so a long-running job doesn't block other
// due jobs in the same poll (spec section 5: orchestrators run in parallel
// across job workers).
func (w *Worker) Run(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	batch := w.BatchSize
	if batch <= 0 {
		batch = 10
	}
	due, err := w.Jobs.ListDueJobs(ctx, time.Now().UTC(), batch)
	if err != nil {
		w.Logger.Error(ctx, "jobqueue: list due jobs failed", "error", err)
		return
	}
	for _, job := range due {
		job := job
		go w.dispatch(ctx, job)
	}
}

func (w *Worker) dispatch(ctx context.Context, job Job) {
	claimed, err := w.Jobs.TryMarkRunning(ctx, job.JobID)
	if err != nil {
		w.Logger.Error(ctx, "jobqueue: claim job failed", "jobId", job.JobID, "error", err)
		return
	}
	if !claimed {
		// Another worker won the race; nothing to do.
		return
	}

	handler, ok := w.Handlers[job.Type]
	if !ok {
		_ = w.Jobs.FailJob(ctx, job.JobID, fmt.Sprintf("jobqueue: no handler registered for job type %q", job.Type))
		return
	}

	if err := handler(ctx, w.Jobs, job); err != nil {
		w.Logger.Error(ctx, "jobqueue: job handler failed", "jobId", job.JobID, "type", job.Type, "error", err)
		if failed, getErr := w.Jobs.GetJob(ctx, job.JobID); getErr == nil && failed.Status == StatusRunning {
			_ = w.Jobs.FailJob(ctx, job.JobID, err.Error())
		}
	}
}
