// internal/tools/historysearch/handler.go
package historysearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mcp-voice-agent/internal/common/database"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/models"
	"mcp-voice-agent/internal/tools"
)

const (
	ToolName = "history_search"
)

var (
	ErrHistorySearchFailed = errors.New("HISTORY_SEARCH_FAILED")
)

type Config struct {
	Index      string
	MaxResults int
}

// Output is the tool result: matching transcript entries, newest first.
type Output struct {
	Query   string                   `json:"query"`
	Matches []models.TranscriptEntry `json:"matches"`
}

// Handler searches prior conversation transcripts in elasticsearch.
type Handler struct {
	config *Config
	es     *database.ElasticsearchClient
	logger logger.Logger
}

func NewHandler(config *Config, es *database.ElasticsearchClient, log logger.Logger) *Handler {
	if config.MaxResults == 0 {
		config.MaxResults = 10
	}
	return &Handler{
		config: config,
		es:     es,
		logger: log.With(map[string]interface{}{"tool": ToolName}),
	}
}

// Tool exposes the handler as a registry tool.
func (h *Handler) Tool() tools.Tool {
	return tools.Tool{
		Name:        ToolName,
		Description: "Search earlier conversation transcripts for what was said about a topic.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text to look for in past transcripts",
				},
			},
			"required": []interface{}{"query"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			query, _ := args["query"].(string)
			return h.Search(ctx, query)
		},
	}
}

// Search runs a match query over transcript text.
func (h *Handler) Search(ctx context.Context, query string) (*Output, error) {
	esQuery, _ := json.Marshal(map[string]interface{}{
		"size": h.config.MaxResults,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"text": query,
			},
		},
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "desc"}},
		},
	})

	raw, err := h.es.Search(ctx, h.config.Index, esQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistorySearchFailed, err)
	}

	var resp struct {
		Hits struct {
			Hits []struct {
				Source models.TranscriptEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrHistorySearchFailed, err)
	}

	out := &Output{Query: query, Matches: make([]models.TranscriptEntry, 0, len(resp.Hits.Hits))}
	for _, hit := range resp.Hits.Hits {
		out.Matches = append(out.Matches, hit.Source)
	}

	h.logger.Info("history search completed", map[string]interface{}{
		"query":   query,
		"matches": len(out.Matches),
	})

	return out, nil
}
