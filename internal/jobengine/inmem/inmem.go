// Package inmem is an in-memory jobengine.Engine for tests and single-process
// development. It is not durable and not replay-safe.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/polaris-ecosystems/rfp-agent/internal/jobengine"
	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
)

type engine struct {
	mu         sync.RWMutex
	workflows  map[string]jobengine.WorkflowDefinition
	activities map[string]jobengine.ActivityDefinition
}

// New returns an Engine that runs workflows and activities as local
// goroutines, keeping all state in process memory.
func New() jobengine.Engine {
	return &engine{
		workflows:  make(map[string]jobengine.WorkflowDefinition),
		activities: make(map[string]jobengine.ActivityDefinition),
	}
}

func (e *engine) RegisterWorkflow(_ context.Context, def jobengine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("jobengine/inmem: invalid workflow definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("jobengine/inmem: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *engine) RegisterActivity(_ context.Context, def jobengine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("jobengine/inmem: invalid activity definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("jobengine/inmem: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = def
	return nil
}

func (e *engine) StartWorkflow(ctx context.Context, req jobengine.WorkflowStartRequest) (jobengine.WorkflowHandle, error) {
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("jobengine/inmem: workflow %q not registered", req.Workflow)
	}
	if req.ID == "" {
		return nil, errors.New("jobengine/inmem: workflow id is required")
	}

	wctx := &workflowContext{ctx: ctx, id: req.ID, eng: e, logger: telemetry.NewNoopLogger()}
	h := &handle{done: make(chan struct{})}

	go func() {
		defer close(h.done)
		res, err := def.Handler(wctx, req.Input)
		h.mu.Lock()
		h.result, h.err = res, err
		h.mu.Unlock()
	}()

	return h, nil
}

type workflowContext struct {
	ctx    context.Context
	id     string
	eng    *engine
	logger telemetry.Logger
}

func (w *workflowContext) Context() context.Context { return w.ctx }
func (w *workflowContext) WorkflowID() string       { return w.id }
func (w *workflowContext) RunID() string            { return w.id }
func (w *workflowContext) Logger() telemetry.Logger { return w.logger }
func (w *workflowContext) Now() time.Time           { return time.Now() }

func (w *workflowContext) ExecuteActivity(ctx context.Context, req jobengine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *workflowContext) ExecuteActivityAsync(ctx context.Context, req jobengine.ActivityRequest) (jobengine.Future, error) {
	w.eng.mu.RLock()
	def, ok := w.eng.activities[req.Name]
	w.eng.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("jobengine/inmem: activity %q not registered", req.Name)
	}

	f := &future{ready: make(chan struct{})}
	go func() {
		defer close(f.ready)
		res, err := def.Handler(ctx, req.Input)
		f.mu.Lock()
		f.result, f.err = res, err
		f.mu.Unlock()
	}()
	return f, nil
}

type handle struct {
	mu     sync.Mutex
	done   chan struct{}
	result any
	err    error
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		assignResult(result, h.result)
		return h.err
	}
}

func (h *handle) Cancel(context.Context) error { return nil }

type future struct {
	mu     sync.Mutex
	ready  chan struct{}
	result any
	err    error
}

func (f *future) Get(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ready:
		f.mu.Lock()
		defer f.mu.Unlock()
		assignResult(result, f.result)
		return f.err
	}
}

func (f *future) IsReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

func assignResult(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return
	}
	if dv.Elem().Kind() == reflect.Interface && sv.Type().Implements(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}
