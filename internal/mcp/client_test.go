// internal/mcp/client_test.go
package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-voice-agent/internal/common/logger"
)

// fakeServer emulates an MCP stdio server over in-memory pipes.
type fakeServer struct {
	in  *io.PipeReader // client writes land here
	out *io.PipeWriter // server responses go here

	// handler builds the response for each decoded request
	handler func(req JSONRPCRequest) interface{}

	// lines written before each response, to exercise non-JSON skipping
	noise []string
}

func (s *fakeServer) run() {
	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		var req JSONRPCRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}

		for _, n := range s.noise {
			fmt.Fprintln(s.out, n)
		}

		resp := s.handler(req)
		data, _ := json.Marshal(resp)
		fmt.Fprintln(s.out, string(data))
	}
}

func startFakeServer(t *testing.T, handler func(req JSONRPCRequest) interface{}, noise ...string) (*Client, error) {
	t.Helper()

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	srv := &fakeServer{
		in:      serverReader,
		out:     serverWriter,
		handler: handler,
		noise:   noise,
	}
	go srv.run()

	t.Cleanup(func() {
		clientWriter.Close()
		serverWriter.Close()
	})

	return NewClientWithTransport(clientReader, clientWriter, logger.NewTestLogger(t))
}

func okResult(id int, result map[string]interface{}) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func TestInitializeHandshake(t *testing.T) {
	var sawInitialize bool

	client, err := startFakeServer(t, func(req JSONRPCRequest) interface{} {
		if req.Method == "initialize" {
			sawInitialize = true
			assert.Equal(t, "2024-11-05", req.Params["protocolVersion"])
		}
		return okResult(req.ID, map[string]interface{}{})
	})

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.True(t, sawInitialize)
}

func TestInitializeError(t *testing.T) {
	_, err := startFakeServer(t, func(req JSONRPCRequest) interface{} {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &JSONRPCError{Code: -32000, Message: "access token rejected"},
		}
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token rejected")
}

func TestListTools(t *testing.T) {
	client, err := startFakeServer(t, func(req JSONRPCRequest) interface{} {
		if req.Method != "tools/list" {
			return okResult(req.ID, map[string]interface{}{})
		}
		return okResult(req.ID, map[string]interface{}{
			"tools": []interface{}{
				map[string]interface{}{
					"name":        "list_tables",
					"description": "List database tables",
					"inputSchema": map[string]interface{}{
						"type":       "object",
						"properties": map[string]interface{}{},
					},
				},
				map[string]interface{}{
					// missing name, must be skipped
					"description": "broken entry",
				},
				map[string]interface{}{
					"name": "run_select",
				},
			},
		})
	})
	require.NoError(t, err)

	tools, err := client.ListTools()
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "list_tables", tools[0].Name)
	assert.Equal(t, "List database tables", tools[0].Description)
	assert.NotNil(t, tools[0].InputSchema)
	assert.Equal(t, "run_select", tools[1].Name)
}

func TestCallToolTextContent(t *testing.T) {
	client, err := startFakeServer(t, func(req JSONRPCRequest) interface{} {
		if req.Method != "tools/call" {
			return okResult(req.ID, map[string]interface{}{})
		}
		assert.Equal(t, "list_tables", req.Params["name"])
		return okResult(req.ID, map[string]interface{}{
			"content": []interface{}{
				map[string]interface{}{"type": "text", "text": `[{"table":"users"}]`},
			},
		})
	})
	require.NoError(t, err)

	text, err := client.CallTool("list_tables", map[string]interface{}{"schemas": []interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, `[{"table":"users"}]`, text)
}

func TestCallToolError(t *testing.T) {
	client, err := startFakeServer(t, func(req JSONRPCRequest) interface{} {
		if req.Method != "tools/call" {
			return okResult(req.ID, map[string]interface{}{})
		}
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &JSONRPCError{Code: -32001, Message: "relation does not exist"},
		}
	})
	require.NoError(t, err)

	_, err = client.CallTool("run_select", map[string]interface{}{"query": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestCallToolEmptyContent(t *testing.T) {
	client, err := startFakeServer(t, func(req JSONRPCRequest) interface{} {
		return okResult(req.ID, map[string]interface{}{})
	})
	require.NoError(t, err)

	text, err := client.CallTool("noop", nil)
	require.NoError(t, err)
	assert.Equal(t, "Tool executed successfully", text)
}

func TestConcurrentCallsGetUniqueIDs(t *testing.T) {
	// requests arrive serialized on the stdio stream, so the fake server
	// sees them one at a time even with concurrent callers
	var ids []int

	client, err := startFakeServer(t, func(req JSONRPCRequest) interface{} {
		if req.Method == "tools/call" {
			ids = append(ids, req.ID)
		}
		return okResult(req.ID, map[string]interface{}{
			"content": []interface{}{
				map[string]interface{}{"type": "text", "text": "ok"},
			},
		})
	})
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := client.CallTool("ping", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, ids, callers)
	seen := make(map[int]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "request ID %d issued twice", id)
		seen[id] = true
	}
}

func TestSkipsNonJSONLines(t *testing.T) {
	client, err := startFakeServer(t, func(req JSONRPCRequest) interface{} {
		return okResult(req.ID, map[string]interface{}{
			"content": []interface{}{
				map[string]interface{}{"type": "text", "text": "ok"},
			},
		})
	}, "npm warn deprecated something", "", "Starting postgrest MCP server...")
	require.NoError(t, err)

	text, err := client.CallTool("ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}
