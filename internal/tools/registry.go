package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
)

// AccessLevel distinguishes safe, read-only tools from tools that mutate
// durable state or have external side effects (spec section 4.4's
// READ_TOOLS / OPERATOR_TOOLS split).
type AccessLevel int

const (
	// AccessRead is a safe, side-effect-free tool. Always included in
	// OPERATOR_TOOLS as well.
	AccessRead AccessLevel = iota
	// AccessOperator is a write-enabled tool: state mutators and reply
	// tools. Only included in OPERATOR_TOOLS.
	AccessOperator
)

// Handler executes a tool call given its already-validated arguments and
// returns a result value to be slimmed and wrapped in a toolerrors.ToolResult.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a single (name, description, json_schema, handler) registration.
type Tool struct {
	Name        Ident
	Description string
	Category    Category
	Access      AccessLevel
	SchemaDoc   any
	schema      *jsonschema.Schema
	handler     Handler
}

// NewTool compiles schemaJSON (a JSON Schema document) and binds it to
// handler. Compilation happens once at registration time so a malformed
// schema fails fast at startup rather than on first call.
func NewTool(name Ident, description string, category Category, access AccessLevel, schemaJSON []byte, handler Handler) (*Tool, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("tools: %s: invalid schema: %w", name, err)
	}
	resourceURL := fmt.Sprintf("mem://tools/%s.json", name)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("tools: %s: add schema resource: %w", name, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("tools: %s: compile schema: %w", name, err)
	}
	return &Tool{Name: name, Description: description, Category: category, Access: access, SchemaDoc: doc, schema: schema, handler: handler}, nil
}

// Registry is the name -> tool dispatch table the agent runtime and job
// executor call through. Safe for concurrent reads once built; Register is
// intended to run at startup before any Call.
type Registry struct {
	mu    sync.RWMutex
	tools map[Ident]*Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Ident]*Tool)}
}

// Register adds tool to the registry, replacing any existing tool with the
// same name.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get returns the named tool, or (nil, false) if unregistered.
func (r *Registry) Get(name Ident) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ReadTools returns every AccessRead tool.
func (r *Registry) ReadTools() []*Tool {
	return r.filter(func(t *Tool) bool { return t.Access == AccessRead })
}

// OperatorTools returns every tool: READ_TOOLS plus state mutators and
// reply tools (spec section 4.4).
func (r *Registry) OperatorTools() []*Tool {
	return r.filter(func(*Tool) bool { return true })
}

// Inventory groups every registered tool by Category, in the shape the job
// planner's system prompt uses to present the tool registry (spec section
// 4.8's tool inventory categorization).
func (r *Registry) Inventory() map[Category][]*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Category][]*Tool)
	for _, tool := range r.tools {
		out[tool.Category] = append(out[tool.Category], tool)
	}
	return out
}

func (r *Registry) filter(keep func(*Tool) bool) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if keep(tool) {
			out = append(out, tool)
		}
	}
	return out
}

// Call validates rawArgs against the tool's schema, invokes its handler,
// and wraps the outcome as a toolerrors.ToolResult with slimmed output.
// Schema validation failures and unknown tool names never reach the
// handler: they are reported as Parse/NotFound ToolErrors.
func (r *Registry) Call(ctx context.Context, name Ident, rawArgs json.RawMessage) toolerrors.ToolResult {
	tool, ok := r.Get(name)
	if !ok {
		return toolerrors.Fail(toolerrors.New(toolerrors.KindNotFound, fmt.Sprintf("unknown tool %q", name)))
	}

	var argsDoc any
	if len(rawArgs) == 0 {
		argsDoc = map[string]any{}
	} else if err := json.Unmarshal(rawArgs, &argsDoc); err != nil {
		return toolerrors.Fail(toolerrors.NewWithCause(toolerrors.KindParse, fmt.Sprintf("%s: malformed arguments", name), err))
	}
	if err := tool.schema.Validate(argsDoc); err != nil {
		return toolerrors.Fail(toolerrors.NewWithCause(toolerrors.KindParse, fmt.Sprintf("%s: argument validation failed", name), err))
	}

	result, err := tool.handler(ctx, rawArgs)
	if err != nil {
		return toolerrors.Fail(toolerrors.FromError(err))
	}
	return toolerrors.Ok(Slim(result))
}
