// internal/tools/supabase/bridge.go
package supabase

import (
	"context"
	"encoding/json"
	"strings"

	"mcp-voice-agent/internal/common/errors"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/mcp"
	"mcp-voice-agent/internal/tools"
)

const (
	// deploy_edge_function is write-heavy and has no place in a voice
	// conversation; it is never proxied.
	skippedTool = "deploy_edge_function"

	listTablesTool = "list_tables"
)

// MCPClient is the subset of the stdio client the bridge needs.
type MCPClient interface {
	ListTools() ([]mcp.Tool, error)
	CallTool(toolName string, arguments map[string]interface{}) (string, error)
}

// Bridge proxies the Supabase MCP server's tools into the agent registry.
type Bridge struct {
	client MCPClient
	logger logger.Logger
}

func NewBridge(client MCPClient, log logger.Logger) *Bridge {
	return &Bridge{
		client: client,
		logger: log.With(map[string]interface{}{"component": "supabase-bridge"}),
	}
}

// BuildTools lists the server's tools and wraps each one as a registry tool.
func (b *Bridge) BuildTools() ([]tools.Tool, error) {
	mcpTools, err := b.client.ListTools()
	if err != nil {
		return nil, errors.NewMCPConnectFailedError(err)
	}

	var out []tools.Tool
	for _, mt := range mcpTools {
		if mt.Name == skippedTool {
			b.logger.Info("skipping mcp tool", map[string]interface{}{
				"tool": mt.Name,
			})
			continue
		}

		schema := mt.InputSchema
		if mt.Name == listTablesTool {
			schema = patchListTablesSchema(schema)
		}
		schema = patchNullableArrays(schema)

		out = append(out, b.proxyTool(mt.Name, mt.Description, schema))
	}

	b.logger.Info("built supabase tools", map[string]interface{}{
		"count": len(out),
	})
	return out, nil
}

func (b *Bridge) proxyTool(name, description string, schema map[string]interface{}) tools.Tool {
	return tools.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return b.call(ctx, name, schema, args)
		},
	}
}

func (b *Bridge) call(ctx context.Context, name string, schema, args map[string]interface{}) (interface{}, error) {
	args = coerceNullArrays(args, schema)

	text, err := b.client.CallTool(name, args)
	if err != nil {
		return nil, errors.NewMCPToolFailedError(name, err)
	}

	// Results usually carry JSON in the text content; fall back to the raw
	// string when they don't.
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded interface{}
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded, nil
		}
	}

	return text, nil
}
