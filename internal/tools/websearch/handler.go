// internal/tools/websearch/handler.go
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mcp-voice-agent/internal/common/database"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/tools"
)

const (
	ToolName = "web_search"

	// maxCrawlLimit caps model-requested result counts.
	maxCrawlLimit = 10
)

var (
	ErrWebSearchTimeout = errors.New("WEB_SEARCH_TIMEOUT")
	ErrWebSearchFailed  = errors.New("WEB_SEARCH_FAILED")
)

// Handler crawls a Google results page through Firecrawl and returns the
// page contents. Failures degrade to empty results so the conversation can
// continue without search data.
type Handler struct {
	config *Config
	client *http.Client
	cache  *database.RedisClient
	logger logger.Logger
}

// NewHandler builds the handler. cache may be nil to disable caching.
func NewHandler(config *Config, cache *database.RedisClient, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		cache: cache,
		logger: log.With(map[string]interface{}{
			"tool": ToolName,
		}),
	}
}

// Tool exposes the handler as a registry tool.
func (h *Handler) Tool() tools.Tool {
	return tools.Tool{
		Name:        ToolName,
		Description: "Search the web for current information. Returns the content of the top result pages.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     maxCrawlLimit,
					"description": "Number of result pages to fetch",
				},
			},
			"required": []interface{}{"query"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			query, _ := args["query"].(string)
			limit := 0
			if raw, ok := args["limit"].(float64); ok {
				limit = int(raw)
			}
			return h.Search(ctx, query, limit), nil
		},
	}
}

// Search runs the crawl. limit is the number of result pages; values outside
// [1, maxCrawlLimit] fall back to the configured default. It never returns an
// error: failures are logged and produce an empty page list.
func (h *Handler) Search(ctx context.Context, query string, limit int) *Output {
	if limit < 1 || limit > maxCrawlLimit {
		limit = h.config.CrawlLimit
	}

	out := &Output{Query: query, Pages: []Page{}}
	if strings.TrimSpace(query) == "" {
		return out
	}

	if cached, ok := h.cacheGet(ctx, query, limit); ok {
		return cached
	}

	pages, err := h.execute(ctx, query, limit)
	if err != nil {
		if errors.Is(err, ErrWebSearchTimeout) {
			h.logger.Warn("web search timed out, returning empty results", map[string]interface{}{
				"query": query,
			})
		} else {
			h.logger.Warn("web search failed, returning empty results", map[string]interface{}{
				"query": query,
				"error": err.Error(),
			})
		}
		return out
	}

	out.Pages = pages
	h.cacheSet(ctx, query, limit, out)
	return out
}

func (h *Handler) execute(ctx context.Context, query string, limit int) ([]Page, error) {
	searchURL := "https://www.google.com/search?q=" + url.QueryEscape(query)

	body, _ := json.Marshal(crawlRequest{
		URL:   searchURL,
		Limit: limit,
		ScrapeOptions: scrapeOptions{
			Formats: []string{"markdown", "text"},
		},
	})

	req, err := http.NewRequestWithContext(ctx, "POST",
		strings.TrimRight(h.config.BaseURL, "/")+"/v1/crawl",
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebSearchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.config.APIKey)

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded ||
			strings.Contains(err.Error(), "timeout") ||
			strings.Contains(err.Error(), "deadline") ||
			strings.Contains(err.Error(), "Client.Timeout") {
			return nil, ErrWebSearchTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrWebSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: crawl API returned %d", ErrWebSearchFailed, resp.StatusCode)
	}

	var apiResponse crawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrWebSearchFailed, err)
	}

	if !apiResponse.Success && apiResponse.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrWebSearchFailed, apiResponse.Error)
	}

	pages := make([]Page, 0, len(apiResponse.Data))
	for _, d := range apiResponse.Data {
		if d.Markdown == "" && d.Text == "" {
			continue
		}
		pages = append(pages, Page{
			URL:      d.Metadata.SourceURL,
			Title:    d.Metadata.Title,
			Markdown: d.Markdown,
			Text:     d.Text,
		})
	}

	h.logger.Info("web search completed", map[string]interface{}{
		"query": query,
		"pages": len(pages),
	})

	return pages, nil
}

func (h *Handler) cacheKey(query string, limit int) string {
	return fmt.Sprintf("websearch:%s:%d", query, limit)
}

func (h *Handler) cacheGet(ctx context.Context, query string, limit int) (*Output, bool) {
	if h.cache == nil {
		return nil, false
	}

	raw, err := h.cache.Get(ctx, h.cacheKey(query, limit))
	if err != nil {
		return nil, false
	}

	var out Output
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}

	h.logger.Info("web search cache hit", map[string]interface{}{
		"query": query,
	})
	return &out, true
}

func (h *Handler) cacheSet(ctx context.Context, query string, limit int, out *Output) {
	if h.cache == nil || len(out.Pages) == 0 {
		return
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return
	}

	if err := h.cache.Set(ctx, h.cacheKey(query, limit), raw, h.config.CacheTTL); err != nil {
		h.logger.Warn("failed to cache web search result", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
	}
}
