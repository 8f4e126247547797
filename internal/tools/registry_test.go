package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/toolerrors"
	"github.com/polaris-ecosystems/rfp-agent/internal/tools"
)

const echoSchema = `{
	"type": "object",
	"properties": {"name": {"type": "string"}},
	"required": ["name"],
	"additionalProperties": false
}`

func newEchoTool(t *testing.T) *tools.Tool {
	t.Helper()
	tool, err := tools.NewTool("echo", "echoes back the given name", tools.CategoryMemory, tools.AccessRead, []byte(echoSchema), func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return map[string]any{"echoed": in.Name}, nil
	})
	require.NoError(t, err)
	return tool
}

func TestNewToolRejectsInvalidSchema(t *testing.T) {
	_, err := tools.NewTool("bad", "bad schema", tools.CategoryMemory, tools.AccessRead, []byte(`{"type": "not-a-real-type"}`), nil)
	assert.Error(t, err)
}

func TestRegistryCallUnknownToolIsNotFound(t *testing.T) {
	registry := tools.NewRegistry()
	result := registry.Call(context.Background(), "does_not_exist", json.RawMessage(`{}`))
	assert.False(t, result.OK)
	assert.Equal(t, string(toolerrors.KindNotFound), result.ErrorType)
}

func TestRegistryCallMalformedArgsIsParseError(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(newEchoTool(t))

	result := registry.Call(context.Background(), "echo", json.RawMessage(`not json`))
	assert.False(t, result.OK)
	assert.Equal(t, string(toolerrors.KindParse), result.ErrorType)
}

func TestRegistryCallSchemaViolationIsParseError(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(newEchoTool(t))

	result := registry.Call(context.Background(), "echo", json.RawMessage(`{"unexpected": true}`))
	assert.False(t, result.OK)
	assert.Equal(t, string(toolerrors.KindParse), result.ErrorType)
}

func TestRegistryCallHandlerErrorIsWrapped(t *testing.T) {
	registry := tools.NewRegistry()
	failing, err := tools.NewTool("failing", "always fails", tools.CategoryMemory, tools.AccessOperator, []byte(`{"type":"object"}`), func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	registry.Register(failing)

	result := registry.Call(context.Background(), "failing", json.RawMessage(`{}`))
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Error)
}

func TestRegistryCallSuccessReturnsSlimmedResult(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(newEchoTool(t))

	result := registry.Call(context.Background(), "echo", json.RawMessage(`{"name": "rfp_1"}`))
	require.True(t, result.OK)
	out, ok := result.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rfp_1", out["echoed"])
}

func TestReadToolsExcludesOperatorOnlyTools(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(newEchoTool(t))
	writer, err := tools.NewTool("write_thing", "mutates state", tools.CategoryOpportunity, tools.AccessOperator, []byte(`{"type":"object"}`), func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	registry.Register(writer)

	readNames := map[tools.Ident]bool{}
	for _, tool := range registry.ReadTools() {
		readNames[tool.Name] = true
	}
	assert.True(t, readNames["echo"])
	assert.False(t, readNames["write_thing"])

	operatorNames := map[tools.Ident]bool{}
	for _, tool := range registry.OperatorTools() {
		operatorNames[tool.Name] = true
	}
	assert.True(t, operatorNames["echo"])
	assert.True(t, operatorNames["write_thing"])
}

func TestGetReturnsFalseForUnregisteredTool(t *testing.T) {
	registry := tools.NewRegistry()
	_, ok := registry.Get("missing")
	assert.False(t, ok)
}
