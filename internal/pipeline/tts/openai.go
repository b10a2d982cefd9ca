// internal/pipeline/tts/openai.go
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	httpclient "mcp-voice-agent/internal/common/http"
	"mcp-voice-agent/internal/common/logger"
)

var (
	ErrTTSSynthesisFailed = errors.New("TTS_SYNTHESIS_FAILED")
)

// Config configures the OpenAI-compatible /audio/speech client. The hosted
// API key is required; the endpoint has no local fallback.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	Timeout time.Duration
}

// Client synthesizes speech through an OpenAI-compatible endpoint.
type Client struct {
	config *Config
	client *httpclient.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("tts requires the hosted API key")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		client: httpclient.NewClient(0),
		logger: log.With(map[string]interface{}{
			"component": "tts",
			"voice":     config.Voice,
		}),
	}, nil
}

type speechRequest struct {
	Model          string `json:"model,omitempty"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Synthesize converts text to audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, _ := json.Marshal(speechRequest{
		Model:          c.config.Model,
		Input:          text,
		Voice:          c.config.Voice,
		ResponseFormat: "pcm",
	})

	req, err := http.NewRequestWithContext(ctx, "POST",
		strings.TrimRight(c.config.BaseURL, "/")+"/audio/speech",
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTTSSynthesisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTTSSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrTTSSynthesisFailed, resp.StatusCode, string(detail))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTTSSynthesisFailed, err)
	}

	c.logger.Info("synthesis completed", map[string]interface{}{
		"textLen":  len(text),
		"audioLen": len(audio),
	})

	return audio, nil
}
