// internal/tools/registry.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"mcp-voice-agent/internal/common/errors"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/common/metrics"
	"mcp-voice-agent/internal/models"
)

// Handler executes a tool call with already-validated arguments.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Tool is a callable capability exposed to the language model.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Handler     Handler
}

// Registry holds the agent's tools and dispatches validated calls.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: log.With(map[string]interface{}{"component": "tools"}),
	}
}

// Register adds a tool. Registering the same name twice replaces the earlier
// entry and logs a warning.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		r.logger.Warn("replacing registered tool", map[string]interface{}{
			"tool": tool.Name,
		})
	}
	r.tools[tool.Name] = tool
	return nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Declarations exports all tools in the LLM function-calling format.
func (r *Registry) Declarations() []models.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]models.ToolDeclaration, 0, len(r.tools))
	for _, tool := range r.tools {
		params := tool.InputSchema
		if params == nil {
			params = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		decls = append(decls, models.ToolDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}

	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}

// Invoke validates the raw JSON arguments against the tool's schema and runs
// the handler.
func (r *Registry) Invoke(ctx context.Context, name, rawArgs string) (interface{}, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		metrics.ToolInvocations.WithLabelValues(name, "not_found").Inc()
		return nil, errors.NewToolNotFoundError(name)
	}

	if strings.TrimSpace(rawArgs) == "" {
		rawArgs = "{}"
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		metrics.ToolInvocations.WithLabelValues(name, "invalid_args").Inc()
		return nil, errors.NewToolValidationFailedError(name, fmt.Sprintf("arguments are not a JSON object: %v", err))
	}

	if tool.InputSchema != nil {
		if err := r.validate(tool, args); err != nil {
			metrics.ToolInvocations.WithLabelValues(name, "invalid_args").Inc()
			return nil, err
		}
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		metrics.ToolInvocations.WithLabelValues(name, "error").Inc()
		r.logger.Error("tool invocation failed", map[string]interface{}{
			"tool":  name,
			"error": err.Error(),
		})
		return nil, err
	}

	metrics.ToolInvocations.WithLabelValues(name, "success").Inc()
	return result, nil
}

func (r *Registry) validate(tool Tool, args map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(tool.InputSchema)
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		// A broken schema should not make the tool uncallable.
		r.logger.Warn("schema validation skipped", map[string]interface{}{
			"tool":  tool.Name,
			"error": err.Error(),
		})
		return nil
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return errors.NewToolValidationFailedError(tool.Name, strings.Join(details, "; "))
	}

	return nil
}
