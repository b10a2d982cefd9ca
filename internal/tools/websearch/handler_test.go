// internal/tools/websearch/handler_test.go
package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-voice-agent/internal/common/database"
	"mcp-voice-agent/internal/common/logger"
)

func crawlSuccess(t *testing.T, calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		assert.Equal(t, "/v1/crawl", r.URL.Path)
		assert.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))

		var req crawlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.URL, "https://www.google.com/search?q=")
		assert.Equal(t, 5, req.Limit)
		assert.Equal(t, []string{"markdown", "text"}, req.ScrapeOptions.Formats)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": []map[string]interface{}{
				{
					"markdown": "# Result one",
					"metadata": map[string]interface{}{
						"title":     "Result One",
						"sourceURL": "https://example.com/1",
					},
				},
				{
					// no content, must be skipped
					"metadata": map[string]interface{}{"sourceURL": "https://example.com/empty"},
				},
			},
		})
	}
}

func testConfig(url string) *Config {
	cfg := DefaultConfig()
	cfg.APIKey = "fc-test"
	cfg.BaseURL = url
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestSearchSuccess(t *testing.T) {
	server := httptest.NewServer(crawlSuccess(t, nil))
	defer server.Close()

	h := NewHandler(testConfig(server.URL), nil, logger.NewTestLogger(t))
	out := h.Search(context.Background(), "best pizza dough", 0)

	require.Len(t, out.Pages, 1)
	assert.Equal(t, "https://example.com/1", out.Pages[0].URL)
	assert.Equal(t, "Result One", out.Pages[0].Title)
	assert.Equal(t, "# Result one", out.Pages[0].Markdown)
}

func TestSearchFailureReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h := NewHandler(testConfig(server.URL), nil, logger.NewTestLogger(t))
	out := h.Search(context.Background(), "anything", 0)

	assert.NotNil(t, out.Pages)
	assert.Empty(t, out.Pages)
}

func TestSearchTimeoutReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond

	h := NewHandler(cfg, nil, logger.NewTestLogger(t))
	out := h.Search(context.Background(), "slow query", 0)

	assert.Empty(t, out.Pages)
}

func TestSearchEmptyQuery(t *testing.T) {
	h := NewHandler(testConfig("http://unreachable.invalid"), nil, logger.NewTestLogger(t))
	out := h.Search(context.Background(), "   ", 0)
	assert.Empty(t, out.Pages)
}

func TestSearchUsesCache(t *testing.T) {
	var calls int32
	server := httptest.NewServer(crawlSuccess(t, &calls))
	defer server.Close()

	mr := miniredis.RunT(t)
	cache := &database.RedisClient{
		Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
	}

	h := NewHandler(testConfig(server.URL), cache, logger.NewTestLogger(t))

	first := h.Search(context.Background(), "cached query", 0)
	require.Len(t, first.Pages, 1)

	second := h.Search(context.Background(), "cached query", 0)
	require.Len(t, second.Pages, 1)
	assert.Equal(t, first.Pages[0].URL, second.Pages[0].URL)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func crawlWithLimit(t *testing.T, wantLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req crawlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, wantLimit, req.Limit)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": []map[string]interface{}{
				{
					"markdown": "# Result",
					"metadata": map[string]interface{}{"sourceURL": "https://example.com/1"},
				},
			},
		})
	}
}

func TestSearchModelSuppliedLimit(t *testing.T) {
	server := httptest.NewServer(crawlWithLimit(t, 2))
	defer server.Close()

	h := NewHandler(testConfig(server.URL), nil, logger.NewTestLogger(t))

	result, err := h.Tool().Handler(context.Background(), map[string]interface{}{
		"query": "weather",
		"limit": float64(2),
	})
	require.NoError(t, err)

	out, ok := result.(*Output)
	require.True(t, ok)
	require.Len(t, out.Pages, 1)
}

func TestSearchLimitOutOfRangeFallsBack(t *testing.T) {
	server := httptest.NewServer(crawlWithLimit(t, 5))
	defer server.Close()

	h := NewHandler(testConfig(server.URL), nil, logger.NewTestLogger(t))
	out := h.Search(context.Background(), "weather", 99)
	require.Len(t, out.Pages, 1)
}

func TestToolDeclaration(t *testing.T) {
	h := NewHandler(testConfig("http://unused.invalid"), nil, logger.NewTestLogger(t))
	tool := h.Tool()

	assert.Equal(t, ToolName, tool.Name)
	assert.NotNil(t, tool.Handler)

	required, ok := tool.InputSchema["required"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, required, "query")
	assert.NotContains(t, required, "limit")

	props := tool.InputSchema["properties"].(map[string]interface{})
	limit := props["limit"].(map[string]interface{})
	assert.Equal(t, "integer", limit["type"])
}
