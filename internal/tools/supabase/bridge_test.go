// internal/tools/supabase/bridge_test.go
package supabase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "mcp-voice-agent/internal/common/errors"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/mcp"
	"mcp-voice-agent/internal/tools"
)

type fakeMCPClient struct {
	tools    []mcp.Tool
	listErr  error
	callErr  error
	result   string
	lastTool string
	lastArgs map[string]interface{}
}

func (f *fakeMCPClient) ListTools() ([]mcp.Tool, error) {
	return f.tools, f.listErr
}

func (f *fakeMCPClient) CallTool(toolName string, arguments map[string]interface{}) (string, error) {
	f.lastTool = toolName
	f.lastArgs = arguments
	return f.result, f.callErr
}

func defaultTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "list_tables",
			Description: "List tables",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"schemas": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
				},
				"required": []interface{}{"schemas"},
			},
		},
		{Name: "deploy_edge_function", Description: "Deploy"},
		{Name: "run_select", Description: "Run a select"},
	}
}

func TestBuildToolsSkipsDeploy(t *testing.T) {
	client := &fakeMCPClient{tools: defaultTools()}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	built, err := bridge.BuildTools()
	require.NoError(t, err)
	require.Len(t, built, 2)

	names := []string{built[0].Name, built[1].Name}
	assert.Contains(t, names, "list_tables")
	assert.Contains(t, names, "run_select")
	assert.NotContains(t, names, "deploy_edge_function")
}

func TestBuildToolsPatchesListTables(t *testing.T) {
	client := &fakeMCPClient{tools: defaultTools()}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	built, err := bridge.BuildTools()
	require.NoError(t, err)

	var listTables map[string]interface{}
	for _, tool := range built {
		if tool.Name == "list_tables" {
			listTables = tool.InputSchema
		}
	}
	require.NotNil(t, listTables)

	// schemas is no longer required
	_, hasRequired := listTables["required"]
	assert.False(t, hasRequired)

	props := listTables["properties"].(map[string]interface{})
	schemas := props["schemas"].(map[string]interface{})
	assert.Equal(t, []interface{}{"array", "null"}, schemas["type"])
	assert.Equal(t, []interface{}{}, schemas["default"])
}

func TestBuildToolsListFailure(t *testing.T) {
	client := &fakeMCPClient{listErr: errors.New("spawn failed")}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	_, err := bridge.BuildTools()
	require.Error(t, err)

	stdErr, ok := err.(*stderrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeMCPConnectFailed, stdErr.Code)
}

func TestProxyCoercesNullArrays(t *testing.T) {
	client := &fakeMCPClient{tools: defaultTools(), result: `[]`}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	built, err := bridge.BuildTools()
	require.NoError(t, err)

	var listTables *func(ctx context.Context, args map[string]interface{}) (interface{}, error)
	for _, tool := range built {
		if tool.Name == "list_tables" {
			h := tool.Handler
			fn := func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return h(ctx, args)
			}
			listTables = &fn
		}
	}
	require.NotNil(t, listTables)

	_, err = (*listTables)(context.Background(), map[string]interface{}{"schemas": nil})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{}, client.lastArgs["schemas"])
}

func TestBuildToolsWidensArrayProperties(t *testing.T) {
	client := &fakeMCPClient{tools: []mcp.Tool{{
		Name: "execute_sql",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ids":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
				"query": map[string]interface{}{"type": "string"},
			},
		},
	}}}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	built, err := bridge.BuildTools()
	require.NoError(t, err)
	require.Len(t, built, 1)

	props := built[0].InputSchema["properties"].(map[string]interface{})
	ids := props["ids"].(map[string]interface{})
	assert.Equal(t, []interface{}{"array", "null"}, ids["type"])

	query := props["query"].(map[string]interface{})
	assert.Equal(t, "string", query["type"])
}

func TestRegistryInvokeCoercesNullArraysOnAnyTool(t *testing.T) {
	client := &fakeMCPClient{
		tools: []mcp.Tool{{
			Name:        "execute_sql",
			Description: "Run a statement",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
				},
			},
		}},
		result: `[]`,
	}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	built, err := bridge.BuildTools()
	require.NoError(t, err)

	registry := tools.NewRegistry(logger.NewTestLogger(t))
	for _, tool := range built {
		require.NoError(t, registry.Register(tool))
	}

	// null for an array-typed property must pass schema validation and reach
	// the server as an empty list
	_, err = registry.Invoke(context.Background(), "execute_sql", `{"ids":null}`)
	require.NoError(t, err)

	assert.Equal(t, "execute_sql", client.lastTool)
	assert.Equal(t, []interface{}{}, client.lastArgs["ids"])
}

func TestProxyDecodesJSONResult(t *testing.T) {
	client := &fakeMCPClient{
		tools:  []mcp.Tool{{Name: "run_select"}},
		result: `[{"id":1,"name":"alice"}]`,
	}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	built, err := bridge.BuildTools()
	require.NoError(t, err)
	require.Len(t, built, 1)

	result, err := built[0].Handler(context.Background(), map[string]interface{}{})
	require.NoError(t, err)

	rows, ok := result.([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "alice", row["name"])
}

func TestProxyReturnsRawText(t *testing.T) {
	client := &fakeMCPClient{
		tools:  []mcp.Tool{{Name: "run_select"}},
		result: "3 rows affected",
	}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	built, err := bridge.BuildTools()
	require.NoError(t, err)

	result, err := built[0].Handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "3 rows affected", result)
}

func TestProxyCallFailure(t *testing.T) {
	client := &fakeMCPClient{
		tools:   []mcp.Tool{{Name: "run_select"}},
		callErr: errors.New("server gone"),
	}
	bridge := NewBridge(client, logger.NewTestLogger(t))

	built, err := bridge.BuildTools()
	require.NoError(t, err)

	_, err = built[0].Handler(context.Background(), nil)
	require.Error(t, err)

	stdErr, ok := err.(*stderrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeMCPToolFailed, stdErr.Code)
}
