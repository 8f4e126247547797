package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/jobengine"
	"github.com/polaris-ecosystems/rfp-agent/internal/jobengine/inmem"
)

func TestEngineRunsWorkflowAndActivity(t *testing.T) {
	eng := inmem.New()
	ctx := context.Background()

	require.NoError(t, eng.RegisterActivity(ctx, jobengine.ActivityDefinition{
		Name: "double",
		Handler: func(_ context.Context, input any) (any, error) {
			return input.(int) * 2, nil
		},
	}))

	require.NoError(t, eng.RegisterWorkflow(ctx, jobengine.WorkflowDefinition{
		Name: "double_workflow",
		Handler: func(wctx jobengine.WorkflowContext, input any) (any, error) {
			var out int
			if err := wctx.ExecuteActivity(wctx.Context(), jobengine.ActivityRequest{Name: "double", Input: input}, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}))

	handle, err := eng.StartWorkflow(ctx, jobengine.WorkflowStartRequest{ID: "run-1", Workflow: "double_workflow", Input: 21})
	require.NoError(t, err)

	var result int
	require.NoError(t, handle.Wait(ctx, &result))
	assert.Equal(t, 42, result)
}

func TestStartWorkflowUnregisteredNameFails(t *testing.T) {
	eng := inmem.New()
	_, err := eng.StartWorkflow(context.Background(), jobengine.WorkflowStartRequest{ID: "run-1", Workflow: "missing"})
	assert.Error(t, err)
}

func TestStartWorkflowRequiresID(t *testing.T) {
	eng := inmem.New()
	ctx := context.Background()
	require.NoError(t, eng.RegisterWorkflow(ctx, jobengine.WorkflowDefinition{
		Name:    "noop",
		Handler: func(jobengine.WorkflowContext, any) (any, error) { return nil, nil },
	}))
	_, err := eng.StartWorkflow(ctx, jobengine.WorkflowStartRequest{Workflow: "noop"})
	assert.Error(t, err)
}

func TestRegisterDuplicateWorkflowFails(t *testing.T) {
	eng := inmem.New()
	ctx := context.Background()
	def := jobengine.WorkflowDefinition{Name: "dup", Handler: func(jobengine.WorkflowContext, any) (any, error) { return nil, nil }}
	require.NoError(t, eng.RegisterWorkflow(ctx, def))
	assert.Error(t, eng.RegisterWorkflow(ctx, def))
}

func TestExecuteActivityUnregisteredFails(t *testing.T) {
	eng := inmem.New()
	ctx := context.Background()
	require.NoError(t, eng.RegisterWorkflow(ctx, jobengine.WorkflowDefinition{
		Name: "calls_missing",
		Handler: func(wctx jobengine.WorkflowContext, _ any) (any, error) {
			var out any
			err := wctx.ExecuteActivity(wctx.Context(), jobengine.ActivityRequest{Name: "missing"}, &out)
			return nil, err
		},
	}))
	handle, err := eng.StartWorkflow(ctx, jobengine.WorkflowStartRequest{ID: "run-2", Workflow: "calls_missing"})
	require.NoError(t, err)
	assert.Error(t, handle.Wait(ctx, nil))
}
