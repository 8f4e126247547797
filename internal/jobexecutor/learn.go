package jobexecutor

import "context"

// Learn writes a procedural memory summarizing how the job went: on
// success, the tool sequence that worked (so Planner.similarJobGuidance can
// retrieve it for a future similar request); on failure, the per-step error
// map (spec section 4.8 Learning).
func Learn(ctx context.Context, mem ProceduralMemory, jobID, request string, plan Plan, result Result) error {
	if mem == nil {
		return nil
	}
	if result.Success {
		return mem.RecordSuccess(ctx, jobID, request, toolSequence(plan), summarize(result))
	}
	return mem.RecordFailure(ctx, jobID, request, result.StepErrors)
}

func toolSequence(plan Plan) []string {
	names := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		names = append(names, step.Tool)
	}
	return names
}

func summarize(result Result) string {
	if len(result.CompletedSteps) == 0 {
		return "completed with no steps"
	}
	return "completed all declared steps"
}
