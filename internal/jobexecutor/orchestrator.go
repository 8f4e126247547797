package jobexecutor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/polaris-ecosystems/rfp-agent/internal/budget"
	"github.com/polaris-ecosystems/rfp-agent/internal/jobengine"
	"github.com/polaris-ecosystems/rfp-agent/internal/resilience"
	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

// ExecuteStepActivityName is the jobengine activity the orchestrator
// schedules once per ready step.
const ExecuteStepActivityName = "jobexecutor.execute_step"

// StepActivityInput is the payload handed to the execute-step activity.
type StepActivityInput struct {
	Tool     string         `json:"tool"`
	ToolArgs map[string]any `json:"toolArgs"`
}

// StepActivityOutput is the execute-step activity's result.
type StepActivityOutput struct {
	OK        bool   `json:"ok"`
	Result    any    `json:"result"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// RegisterStepActivity registers the tool-dispatch activity with eng. It
// wraps each dispatch with resilience.RetryWithClassification using
// resilience.DefaultRetryOptions() (MaxRetries 3, BaseDelay 1s, MaxDelay
// 60s), which differ from the MaxRetries 2 / 500ms / 5s options of the
// interactive agent runtime's callToolWithRetry.
func RegisterStepActivity(ctx context.Context, eng jobengine.Engine, registry *tools.Registry) error {
	return eng.RegisterActivity(ctx, jobengine.ActivityDefinition{
		Name: ExecuteStepActivityName,
		Handler: func(ctx context.Context, input any) (any, error) {
			in, ok := input.(StepActivityInput)
			if !ok {
				return StepActivityOutput{Error: "jobexecutor: invalid step activity input"}, nil
			}
			argsJSON, err := json.Marshal(in.ToolArgs)
			if err != nil {
				return StepActivityOutput{Error: err.Error()}, nil
			}

			var last toolerrors.ToolResult
			retryErr := resilience.RetryWithClassification(ctx, resilience.DefaultRetryOptions(), func() error {
				last = registry.Call(ctx, tools.Ident(in.Tool), argsJSON)
				if !last.OK && last.Retryable {
					return fmt.Errorf("jobexecutor: step tool %q failed: %s", in.Tool, last.Error)
				}
				return nil
			})
			_ = retryErr

			return StepActivityOutput{OK: last.OK, Result: last.Result, Error: last.Error, Retryable: last.Retryable}, nil
		},
	})
}

// Result is the terminal outcome of an orchestrator run (spec section 4.8
// Termination): success iff no failed steps and all declared steps
// completed, otherwise the partial results and per-step errors that let a
// caller or operator see exactly how far the job got.
type Result struct {
	Success        bool
	CompletedSteps []string
	FailedSteps    []string
	PartialResults map[string]any
	StepErrors     map[string]string
	TokenUsage     map[string]any
	Error          string
}

// Orchestrator executes a Plan's step DAG: get_ready_steps, execute each
// ready step (trying declared alternatives in order on primary failure),
// and checkpoint periodically so a crashed or restarted worker can resume
// without redoing completed work.
type Orchestrator struct {
	Checkpoints *CheckpointStore
	Policy      checkpointPolicy
}

// NewOrchestrator constructs an Orchestrator with the default checkpoint
// policy (every 10 steps or 300s, whichever comes first).
func NewOrchestrator(checkpoints *CheckpointStore) *Orchestrator {
	return &Orchestrator{Checkpoints: checkpoints, Policy: defaultCheckpointPolicy()}
}

// Run drives plan's DAG to completion (or to the point no further step can
// become ready) through wctx, optionally resuming from a prior checkpoint.
func (o *Orchestrator) Run(wctx jobengine.WorkflowContext, jobID string, plan Plan, tracker *budget.Tracker, resume *Checkpoint) (Result, error) {
	completed := map[string]bool{}
	failed := map[string]bool{}
	results := map[string]any{}
	stepErrors := map[string]string{}
	stepCounter := 0

	if resume != nil {
		for _, id := range resume.CompletedSteps {
			completed[id] = true
		}
		for _, id := range resume.FailedSteps {
			failed[id] = true
		}
		for id, raw := range resume.StepResults {
			var v any
			_ = json.Unmarshal([]byte(raw), &v)
			results[id] = v
		}
		for id, msg := range resume.StepErrors {
			stepErrors[id] = msg
		}
		stepCounter = resume.StepCounter
		if restored := budgetFromCheckpoint(resume.Budget); restored != nil && tracker == nil {
			tracker = restored
		}
	}

	stepsSinceCheckpoint := 0
	lastCheckpoint := wctx.Now()

	for {
		if tracker != nil && tracker.IsBudgetExhausted() {
			break
		}

		ready := getReadySteps(plan.Steps, completed, failed)
		if len(ready) == 0 {
			break
		}

		for _, step := range ready {
			outcome := o.runStepWithAlternatives(wctx, step)
			stepCounter++
			stepsSinceCheckpoint++

			if outcome.OK {
				completed[step.StepID] = true
				results[step.StepID] = outcome.Result
			} else {
				failed[step.StepID] = true
				stepErrors[step.StepID] = outcome.Error
			}

			if o.Checkpoints != nil && o.Policy.due(stepsSinceCheckpoint, wctx.Now().Sub(lastCheckpoint)) {
				if err := o.save(wctx, jobID, completed, failed, results, stepErrors, stepCounter, tracker); err == nil {
					stepsSinceCheckpoint = 0
					lastCheckpoint = wctx.Now()
				}
			}
		}
	}

	if o.Checkpoints != nil {
		_ = o.save(wctx, jobID, completed, failed, results, stepErrors, stepCounter, tracker)
	}

	return buildResult(plan, completed, failed, results, stepErrors, tracker), nil
}

type stepOutcome struct {
	OK     bool
	Result any
	Error  string
}

// runStepWithAlternatives executes step's primary tool; on failure it tries
// each declared alternative in order before giving up (spec section 4.8,
// SPEC_FULL supplement 4).
func (o *Orchestrator) runStepWithAlternatives(wctx jobengine.WorkflowContext, step Step) stepOutcome {
	candidates := append([]Step{step}, step.Alternatives...)
	var last stepOutcome
	for _, candidate := range candidates {
		var out StepActivityOutput
		err := wctx.ExecuteActivity(wctx.Context(), jobengine.ActivityRequest{
			Name:  ExecuteStepActivityName,
			Input: StepActivityInput{Tool: candidate.Tool, ToolArgs: candidate.ToolArgs},
		}, &out)
		if err != nil {
			last = stepOutcome{Error: err.Error()}
			continue
		}
		if out.OK {
			return stepOutcome{OK: true, Result: out.Result}
		}
		last = stepOutcome{Error: out.Error}
	}
	return last
}

// getReadySteps returns the steps whose dependencies are all completed and
// that are not yet completed or failed themselves.
func getReadySteps(steps []Step, completed, failed map[string]bool) []Step {
	var ready []Step
	for _, step := range steps {
		if completed[step.StepID] || failed[step.StepID] {
			continue
		}
		blocked := false
		for _, dep := range step.DependsOn {
			if !completed[dep] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, step)
		}
	}
	return ready
}

func (o *Orchestrator) save(wctx jobengine.WorkflowContext, jobID string, completed, failed map[string]bool, results map[string]any, stepErrors map[string]string, stepCounter int, tracker *budget.Tracker) error {
	encodedResults := make(map[string]string, len(results))
	for id, v := range results {
		encoded, err := json.Marshal(v)
		if err != nil {
			continue
		}
		encodedResults[id] = string(encoded)
	}

	cp := Checkpoint{
		JobID:          jobID,
		CompletedSteps: keys(completed),
		FailedSteps:    keys(failed),
		StepResults:    encodedResults,
		StepErrors:     stepErrors,
		StepCounter:    stepCounter,
		Budget:         budgetToCheckpoint(tracker),
	}
	return o.Checkpoints.Save(wctx.Context(), cp)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func buildResult(plan Plan, completed, failed map[string]bool, results map[string]any, stepErrors map[string]string, tracker *budget.Tracker) Result {
	success := len(failed) == 0 && len(completed) == len(plan.Steps)
	res := Result{
		Success:        success,
		CompletedSteps: keys(completed),
		FailedSteps:    keys(failed),
		PartialResults: results,
		StepErrors:     stepErrors,
	}
	if tracker != nil {
		res.TokenUsage = tracker.ToDict()
	}
	if !success {
		res.Error = fmt.Sprintf("job did not complete: %d/%d steps completed, %d failed", len(completed), len(plan.Steps), len(failed))
	}
	return res
}
