package jobexecutor

import (
	"context"
	"fmt"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/jobengine"
	"github.com/polaris-ecosystems/rfp-agent/internal/jobqueue"
	"github.com/polaris-ecosystems/rfp-agent/internal/kvstore"
)

// AgentExecuteJobType is the jobqueue.Job.Type routed through the Job
// Executor (spec section 4.9): free-form "do this" requests and other
// long-running agent work. No other job type has a handler in this tree.
const AgentExecuteJobType = "ai_agent_execute"

// NewAgentExecuteHandler returns a jobqueue.Handler that plans, runs (or
// resumes from checkpoint), learns from, and terminates an AgentExecute
// job: the glue between the generic job queue and this package's
// Planner/Orchestrator.
func NewAgentExecuteHandler(planner *Planner, orchestrator *Orchestrator, eng jobengine.Engine, memory ProceduralMemory) jobqueue.Handler {
	return func(ctx context.Context, repo *jobqueue.Repository, job jobqueue.Job) error {
		request, _ := job.Payload["request"].(string)
		rfpID, _ := job.Payload["rfpId"].(string)

		tracker := trackerFromPayload(job.Payload)
		var resume *Checkpoint
		if orchestrator.Checkpoints != nil {
			cp, err := orchestrator.Checkpoints.Load(ctx, job.JobID)
			switch {
			case err == nil:
				resume = &cp
				if restored := budgetFromCheckpoint(cp.Budget); restored != nil {
					tracker = restored
				}
			case err != kvstore.ErrNotFound:
				return fmt.Errorf("jobexecutor: load checkpoint %s: %w", job.JobID, err)
			}
		}

		plan, err := planner.Plan(ctx, request, rfpID)
		if err != nil {
			return fmt.Errorf("jobexecutor: plan job %s: %w", job.JobID, err)
		}

		workflowName := "jobexecutor.run." + job.JobID
		if err := eng.RegisterWorkflow(ctx, jobengine.WorkflowDefinition{
			Name: workflowName,
			Handler: func(wctx jobengine.WorkflowContext, _ any) (any, error) {
				return orchestrator.Run(wctx, job.JobID, plan, tracker, resume)
			},
		}); err != nil {
			return fmt.Errorf("jobexecutor: register run workflow %s: %w", job.JobID, err)
		}

		handle, err := eng.StartWorkflow(ctx, jobengine.WorkflowStartRequest{ID: job.JobID, Workflow: workflowName})
		if err != nil {
			return fmt.Errorf("jobexecutor: start run workflow %s: %w", job.JobID, err)
		}

		var result Result
		if err := handle.Wait(ctx, &result); err != nil {
			return fmt.Errorf("jobexecutor: run job %s: %w", job.JobID, err)
		}

		_ = Learn(ctx, memory, job.JobID, request, plan, result)

		if result.Success {
			return repo.CompleteJob(ctx, job.JobID, result)
		}
		return repo.FailJobWithResult(ctx, job.JobID, result.Error, result)
	}
}

// trackerFromPayload initializes a budget tracker from the job payload's
// timeBudgetMinutes or costBudgetUsd fields, defaulting to 15 minutes when
// neither is set (spec section 4.9).
func trackerFromPayload(payload map[string]any) *budget.Tracker {
	var minutes, costUSD *float64
	if v, ok := payload["timeBudgetMinutes"].(float64); ok {
		minutes = &v
	}
	if v, ok := payload["costBudgetUsd"].(float64); ok {
		costUSD = &v
	}
	model, _ := payload["model"].(string)
	return budget.NewTrackerFromTimeBudget(minutes, costUSD, model)
}
