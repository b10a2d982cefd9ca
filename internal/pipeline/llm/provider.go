// internal/pipeline/llm/provider.go
package llm

import (
	"context"

	"mcp-voice-agent/internal/common/config"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/models"
)

// Request is one chat completion call.
type Request struct {
	Messages    []models.Message
	Tools       []models.ToolDeclaration
	Temperature float64
	MaxTokens   int
}

// Completion is the model's answer: either final text or tool calls to run.
type Completion struct {
	Text      string
	ToolCalls []models.ToolCall
}

// Provider abstracts a chat completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// NewFromConfig resolves the configured backend. The local flag wins, then
// hosted key presence, else the local endpoint is the fallback.
func NewFromConfig(cfg *config.Config, log logger.Logger) Provider {
	sel := config.SelectLLM(cfg)

	log.Info("selected llm backend", map[string]interface{}{
		"kind":    sel.Kind,
		"model":   sel.Model,
		"baseUrl": sel.BaseURL,
	})

	return NewOpenAIClient(&OpenAIConfig{
		BaseURL:    sel.BaseURL,
		APIKey:     sel.APIKey,
		Model:      sel.Model,
		Timeout:    config.GetDuration(cfg.Providers.LLM.Timeout),
		MaxRetries: cfg.Providers.LLM.MaxRetries,
	}, log)
}
