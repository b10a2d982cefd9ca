// internal/pipeline/llm/openai.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/models"
)

var (
	ErrLLMTimeout          = errors.New("LLM_TIMEOUT")
	ErrLLMCompletionFailed = errors.New("LLM_COMPLETION_FAILED")
)

// OpenAIConfig configures the OpenAI-compatible chat completions client.
// Both the hosted endpoint and a local Ollama server speak this API; they
// differ only in base URL and key.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIClient talks to an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	config *OpenAIConfig
	client *http.Client
	logger logger.Logger
}

func NewOpenAIClient(config *OpenAIConfig, log logger.Logger) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OpenAIClient{
		config: config,
		// No HTTP client timeout, deadlines come from the request context.
		client: &http.Client{},
		logger: log.With(map[string]interface{}{
			"component": "llm",
			"model":     config.Model,
		}),
	}
}

func (c *OpenAIClient) Name() string {
	return "openai-compatible"
}

// wire format

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete runs one chat completion with bounded retry and exponential
// backoff honoring the context deadline.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMCompletionFailed, err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrLLMTimeout
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST",
			strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions",
			bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLLMCompletionFailed, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(httpReq)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil

			// Client errors other than rate limiting will not heal on retry.
			if lastErr.Error() != "status 429" && strings.HasPrefix(lastErr.Error(), "status 4") {
				return nil, fmt.Errorf("%w: %v", ErrLLMCompletionFailed, lastErr)
			}
		}

		if ctx.Err() != nil {
			return nil, ErrLLMTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrLLMTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrLLMCompletionFailed, lastErr)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no successful response after retries", ErrLLMCompletionFailed)
	}
	defer resp.Body.Close()

	var apiResponse chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrLLMCompletionFailed, err)
	}

	if apiResponse.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrLLMCompletionFailed, apiResponse.Error.Message)
	}
	if len(apiResponse.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrLLMCompletionFailed)
	}

	choice := apiResponse.Choices[0]
	completion := &Completion{Text: choice.Message.Content}

	for _, tc := range choice.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	c.logger.Info("completion finished", map[string]interface{}{
		"finishReason": choice.FinishReason,
		"toolCalls":    len(completion.ToolCalls),
	})

	return completion, nil
}

func (c *OpenAIClient) buildRequest(req *Request) chatRequest {
	out := chatRequest{
		Model:       c.config.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	for _, m := range req.Messages {
		cm := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			wire := chatToolCall{ID: tc.ID, Type: "function"}
			wire.Function.Name = tc.Name
			wire.Function.Arguments = tc.Arguments
			cm.ToolCalls = append(cm.ToolCalls, wire)
		}
		out.Messages = append(out.Messages, cm)
	}

	for _, t := range req.Tools {
		wire := chatTool{Type: "function"}
		wire.Function.Name = t.Name
		wire.Function.Description = t.Description
		wire.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, wire)
	}

	return out
}
