// internal/common/errors/errors_test.go
package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
	}{
		{"config invalid", NewConfigInvalidError("missing key"), ErrCodeConfigInvalid, false},
		{"realtime connect", NewRealtimeConnectFailedError(cause), ErrCodeRealtimeConnectFailed, true},
		{"stt stream", NewSTTStreamFailedError(cause), ErrCodeSTTStreamFailed, true},
		{"llm timeout", NewLLMTimeoutError(), ErrCodeLLMTimeout, true},
		{"llm completion", NewLLMCompletionFailedError(cause), ErrCodeLLMCompletionFailed, true},
		{"tts synthesis", NewTTSSynthesisFailedError(cause), ErrCodeTTSSynthesisFailed, true},
		{"web search timeout", NewWebSearchTimeoutError(), ErrCodeWebSearchTimeout, false},
		{"web search failed", NewWebSearchFailedError(cause), ErrCodeWebSearchFailed, false},
		{"mcp connect", NewMCPConnectFailedError(cause), ErrCodeMCPConnectFailed, false},
		{"mcp tool", NewMCPToolFailedError("list_tables", cause), ErrCodeMCPToolFailed, true},
		{"tool not found", NewToolNotFoundError("nope"), ErrCodeToolNotFound, false},
		{"query failed", NewDatabaseQueryFailedError("recent_sessions", cause), ErrCodeDatabaseQueryFailed, true},
		{"invalid query name", NewInvalidQueryNameError("drop_everything"), ErrCodeInvalidQueryName, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.NotEmpty(t, tt.err.Message)
			assert.False(t, tt.err.Timestamp.IsZero())
			assert.Contains(t, tt.err.Error(), string(tt.code))
		})
	}
}

func TestGetRetryCount(t *testing.T) {
	assert.Equal(t, 3, GetRetryCount(ErrCodeSTTStreamFailed))
	assert.Equal(t, 3, GetRetryCount(ErrCodeDatabaseQueryFailed))
	assert.Equal(t, 2, GetRetryCount(ErrCodeMCPToolFailed))
	assert.Equal(t, 1, GetRetryCount(ErrCodeLLMTimeout))
	assert.Equal(t, 0, GetRetryCount(ErrCodeWebSearchFailed))
	assert.Equal(t, 0, GetRetryCount(ErrCodeToolValidationFailed))
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeLLMCompletionFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeConfigInvalid))
	assert.False(t, IsRetryableErrorCode(ErrCodeMCPConnectFailed))
}

func TestConvertToSessionError(t *testing.T) {
	stdErr := NewMCPToolFailedError("list_tables", fmt.Errorf("boom"))

	sessErr := ConvertToSessionError(stdErr)
	require.NotNil(t, sessErr)

	assert.Equal(t, "MCP_TOOL_FAILED", sessErr.Code)
	assert.Equal(t, 2, sessErr.Retries)
	assert.True(t, sessErr.Retryable)
	assert.Equal(t, "MCP_TOOL_FAILED", sessErr.Variables["originalErrorCode"])
}

func TestConvertNonRetryableHasZeroRetries(t *testing.T) {
	sessErr := ConvertToSessionError(NewWebSearchFailedError(fmt.Errorf("boom")))
	assert.Equal(t, 0, sessErr.Retries)
	assert.False(t, sessErr.Retryable)
}

func TestSessionErrorToEventPayload(t *testing.T) {
	sessErr := &SessionError{
		Code:      "LLM_TIMEOUT",
		Message:   "LLM completion timeout",
		Retryable: true,
		Variables: map[string]interface{}{"turn": 3},
	}

	payload := sessErr.ToEventPayload()
	assert.Equal(t, "LLM_TIMEOUT", payload["errorCode"])
	assert.Equal(t, true, payload["retryable"])
	assert.Equal(t, 3, payload["turn"])
}

type captureLogger struct {
	messages []string
}

func (l *captureLogger) Error(msg string, fields map[string]interface{}) {
	l.messages = append(l.messages, msg)
}

type capturePublisher struct {
	sessionID string
	payload   map[string]interface{}
	err       error
}

func (p *capturePublisher) PublishError(ctx context.Context, sessionID string, payload map[string]interface{}) error {
	p.sessionID = sessionID
	p.payload = payload
	return p.err
}

func TestHandleSessionError(t *testing.T) {
	log := &captureLogger{}
	pub := &capturePublisher{}
	handler := NewErrorHandler(log)

	sessErr := handler.HandleSessionError(context.Background(), pub, "s1",
		NewLLMTimeoutError())

	require.NotNil(t, sessErr)
	assert.Equal(t, "LLM_TIMEOUT", sessErr.Code)
	assert.Equal(t, "s1", pub.sessionID)
	assert.Equal(t, "LLM_TIMEOUT", pub.payload["errorCode"])
	assert.NotEmpty(t, log.messages)
}

func TestHandleSessionErrorWrapsPlainErrors(t *testing.T) {
	handler := NewErrorHandler(&captureLogger{})

	sessErr := handler.HandleSessionError(context.Background(), nil, "s1",
		fmt.Errorf("something odd"))

	assert.Equal(t, "INTERNAL_ERROR", sessErr.Code)
	assert.False(t, sessErr.Retryable)
}

func TestHandleSessionErrorSwallowsPublishFailure(t *testing.T) {
	log := &captureLogger{}
	pub := &capturePublisher{err: fmt.Errorf("connection gone")}
	handler := NewErrorHandler(log)

	sessErr := handler.HandleSessionError(context.Background(), pub, "s1",
		NewTTSSynthesisFailedError(fmt.Errorf("boom")))

	require.NotNil(t, sessErr)
	assert.GreaterOrEqual(t, len(log.messages), 2)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "CONFIG", GetErrorCategory(ErrCodeConfigInvalid))
	assert.Equal(t, "REALTIME", GetErrorCategory(ErrCodeRealtimeStreamClosed))
	assert.Equal(t, "PIPELINE", GetErrorCategory(ErrCodeLLMTimeout))
	assert.Equal(t, "PIPELINE", GetErrorCategory(ErrCodeTTSSynthesisFailed))
	assert.Equal(t, "TOOLS", GetErrorCategory(ErrCodeMCPToolFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDatabaseQueryFailed))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeHistorySearchFailed))
}
