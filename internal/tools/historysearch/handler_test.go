// internal/tools/historysearch/handler_test.go
package historysearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-voice-agent/internal/common/database"
	"mcp-voice-agent/internal/common/logger"
)

func newESHandler(t *testing.T, fn http.HandlerFunc) *Handler {
	t.Helper()

	server := httptest.NewServer(fn)
	t.Cleanup(server.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)

	return NewHandler(
		&Config{Index: "agent-transcripts", MaxResults: 5},
		&database.ElasticsearchClient{Client: es},
		logger.NewTestLogger(t),
	)
}

func TestSearch(t *testing.T) {
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	h := newESHandler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "agent-transcripts")

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5), body["size"])

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{
				"hits": []map[string]interface{}{
					{
						"_source": map[string]interface{}{
							"sessionId": "s1",
							"roomName":  "room-a",
							"role":      "user",
							"text":      "tell me about pricing",
							"timestamp": ts,
						},
					},
				},
			},
		})
	})

	out, err := h.Search(context.Background(), "pricing")
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, "s1", out.Matches[0].SessionID)
	assert.Equal(t, "tell me about pricing", out.Matches[0].Text)
}

func TestSearchNoHits(t *testing.T) {
	h := newESHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{"hits": []interface{}{}},
		})
	})

	out, err := h.Search(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Empty(t, out.Matches)
}

func TestSearchServerError(t *testing.T) {
	h := newESHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := h.Search(context.Background(), "boom")
	require.ErrorIs(t, err, ErrHistorySearchFailed)
}

func TestToolDeclaration(t *testing.T) {
	h := newESHandler(t, func(w http.ResponseWriter, r *http.Request) {})
	tool := h.Tool()

	assert.Equal(t, ToolName, tool.Name)
	required := tool.InputSchema["required"].([]interface{})
	assert.Contains(t, required, "query")
}
