// internal/mcp/client.go
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"mcp-voice-agent/internal/common/logger"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      int                    `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      int                    `json:"id"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   *JSONRPCError          `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Client manages JSON-RPC communication with an MCP stdio server.
type Client struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	reader    *bufio.Reader
	writer    *bufio.Writer
	requestID int
	mutex     sync.Mutex
	logger    logger.Logger
}

// NewClient spawns the MCP server command and completes the initialize
// handshake. The command is split on whitespace; extraArgs are appended.
func NewClient(ctx context.Context, command string, extraArgs []string, log logger.Logger) (*Client, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty MCP server command")
	}
	args := append(parts[1:], extraArgs...)

	cmd := exec.CommandContext(ctx, parts[0], args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}

	client := &Client{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		reader: bufio.NewReader(stdout),
		writer: bufio.NewWriter(stdin),
		logger: log,
	}

	go client.readStderr()

	if err := client.initialize(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	return client, nil
}

// NewClientWithTransport builds a client over an existing reader/writer pair
// instead of spawning a process. The initialize handshake is still performed.
func NewClientWithTransport(r io.Reader, w io.Writer, log logger.Logger) (*Client, error) {
	client := &Client{
		reader: bufio.NewReader(r),
		writer: bufio.NewWriter(w),
		logger: log,
	}

	if err := client.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	return client, nil
}

// readStderr drains server stderr to the agent log.
func (c *Client) readStderr() {
	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		c.logger.Debug("mcp server stderr", map[string]interface{}{
			"line": scanner.Text(),
		})
	}
}

// initialize sends the initialize request to the MCP server
func (c *Client) initialize() error {
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"roots": map[string]interface{}{
					"listChanged": true,
				},
			},
			"clientInfo": map[string]interface{}{
				"name":    "mcp-voice-agent",
				"version": "1.0.0",
			},
		},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	if resp.Error != nil {
		return fmt.Errorf("initialize error: %s", resp.Error.Message)
	}

	c.logger.Info("mcp server initialized", nil)
	return nil
}

// ListTools retrieves all available tools from the MCP server
func (c *Client) ListTools() ([]Tool, error) {
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "tools/list",
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list error: %s", resp.Error.Message)
	}

	toolsData, ok := resp.Result["tools"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid tools response format")
	}

	var tools []Tool
	for _, t := range toolsData {
		toolMap, ok := t.(map[string]interface{})
		if !ok {
			continue
		}

		name, _ := toolMap["name"].(string)
		if name == "" {
			continue
		}

		description, _ := toolMap["description"].(string)
		tool := Tool{
			Name:        name,
			Description: description,
		}

		if schema, ok := toolMap["inputSchema"].(map[string]interface{}); ok {
			tool.InputSchema = schema
		}

		tools = append(tools, tool)
	}

	return tools, nil
}

// CallTool executes a tool on the MCP server and returns the text of the
// first content item.
func (c *Client) CallTool(toolName string, arguments map[string]interface{}) (string, error) {
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params: map[string]interface{}{
			"name":      toolName,
			"arguments": arguments,
		},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return "", fmt.Errorf("tools/call failed: %w", err)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("tool error: %s", resp.Error.Message)
	}

	content, ok := resp.Result["content"].([]interface{})
	if !ok || len(content) == 0 {
		// Some tools return empty content on success; surface what we have.
		if len(resp.Result) > 0 {
			resultJSON, err := json.Marshal(resp.Result)
			if err == nil && string(resultJSON) != "{}" {
				return string(resultJSON), nil
			}
		}
		return "Tool executed successfully", nil
	}

	firstContent, ok := content[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid content format")
	}

	text, ok := firstContent["text"].(string)
	if !ok {
		if data, hasData := firstContent["data"]; hasData {
			if str, isStr := data.(string); isStr {
				return str, nil
			}
		}
		return "", fmt.Errorf("no text in content")
	}

	return text, nil
}

// sendRequest assigns the request ID, sends the JSON-RPC request, and waits
// for the response. The ID is taken under the same mutex that serializes the
// stream, so concurrent callers never share or skip an ID.
func (c *Client) sendRequest(req JSONRPCRequest) (*JSONRPCResponse, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	req.ID = c.nextID()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if _, err := c.writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	if _, err := c.writer.WriteString("\n"); err != nil {
		return nil, fmt.Errorf("failed to write newline: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush: %w", err)
	}

	// Read response, skipping non-JSON lines (npm banners, logs, etc.)
	var resp JSONRPCResponse
	maxAttempts := 100
	for attempt := 0; attempt < maxAttempts; attempt++ {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			c.logger.Debug("skipping non-JSON line from mcp server", map[string]interface{}{
				"line": line,
			})
			continue
		}

		return &resp, nil
	}

	return nil, fmt.Errorf("no valid JSON-RPC response found after %d lines", maxAttempts)
}

// nextID returns the next request ID. Must be called with c.mutex held.
func (c *Client) nextID() int {
	c.requestID++
	return c.requestID
}

// Close terminates the MCP server
func (c *Client) Close() error {
	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.stdout != nil {
		c.stdout.Close()
	}
	if c.stderr != nil {
		c.stderr.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}
