// Package errors provides standardized error handling for the voice agent.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	ErrCodeRealtimeConnectFailed ErrorCode = "REALTIME_CONNECT_FAILED"
	ErrCodeRealtimeStreamClosed  ErrorCode = "REALTIME_STREAM_CLOSED"

	ErrCodeSTTStreamFailed     ErrorCode = "STT_STREAM_FAILED"
	ErrCodeLLMTimeout          ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMCompletionFailed ErrorCode = "LLM_COMPLETION_FAILED"
	ErrCodeTTSSynthesisFailed  ErrorCode = "TTS_SYNTHESIS_FAILED"

	ErrCodeWebSearchTimeout ErrorCode = "WEB_SEARCH_TIMEOUT"
	ErrCodeWebSearchFailed  ErrorCode = "WEB_SEARCH_FAILED"

	ErrCodeMCPConnectFailed     ErrorCode = "MCP_CONNECT_FAILED"
	ErrCodeMCPToolFailed        ErrorCode = "MCP_TOOL_FAILED"
	ErrCodeToolNotFound         ErrorCode = "TOOL_NOT_FOUND"
	ErrCodeToolValidationFailed ErrorCode = "TOOL_VALIDATION_FAILED"

	ErrCodeDatabaseQueryFailed    ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeCacheFailed            ErrorCode = "CACHE_FAILED"
	ErrCodeTranscriptIndexFailed  ErrorCode = "TRANSCRIPT_INDEX_FAILED"
	ErrCodeHistorySearchFailed    ErrorCode = "HISTORY_SEARCH_FAILED"
	ErrCodeInvalidQueryName       ErrorCode = "INVALID_QUERY_NAME"
	ErrCodeDatabaseConnectFailed  ErrorCode = "DATABASE_CONNECTION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Session Error Integration
// ==========================

// SessionError is the wire form reported to the realtime media server when a
// session step fails.
type SessionError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Retries   int                    `json:"retries"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("SessionError[%s]: %s", e.Code, e.Message)
}

// ToEventPayload returns a map suitable for publishing on the realtime
// connection as an agent error event.
func (e *SessionError) ToEventPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.Variables != nil {
		for k, v := range e.Variables {
			payload[k] = v
		}
	}

	return payload
}

// ==========================
// 3. Error Constructors
// ==========================

// NewConfigInvalidError creates a non-retryable configuration error.
func NewConfigInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigInvalid,
		Message:   "Invalid agent configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRealtimeConnectFailedError creates a retryable media-server connection error.
func NewRealtimeConnectFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRealtimeConnectFailed,
		Message:   "Realtime media server connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRealtimeStreamClosedError creates a retryable stream closure error.
func NewRealtimeStreamClosedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRealtimeStreamClosed,
		Message:   "Realtime stream closed unexpectedly",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSTTStreamFailedError creates a retryable transcription stream error.
func NewSTTStreamFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSTTStreamFailed,
		Message:   "Speech-to-text stream error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM completion timeout",
		Details:   "completion call exceeded the configured timeout",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMCompletionFailedError creates a retryable LLM API error.
func NewLLMCompletionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMCompletionFailed,
		Message:   "LLM completion API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTTSSynthesisFailedError creates a retryable speech synthesis error.
func NewTTSSynthesisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTTSSynthesisFailed,
		Message:   "Speech synthesis API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWebSearchTimeoutError creates a non-retryable (returns empty) web search timeout error.
func NewWebSearchTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeWebSearchTimeout,
		Message:   "Web search API timeout",
		Details:   "crawl call exceeded the configured timeout",
		Retryable: false, // search degrades to empty results, don't retry
		Timestamp: time.Now().UTC(),
	}
}

// NewWebSearchFailedError creates a non-retryable web search error. The tool
// reports empty results to the model instead of retrying.
func NewWebSearchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWebSearchFailed,
		Message:   "Web search API error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMCPConnectFailedError creates a non-retryable MCP startup error. The
// agent continues in search-only mode when this occurs.
func NewMCPConnectFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMCPConnectFailed,
		Message:   "MCP server connection error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMCPToolFailedError creates a retryable MCP tool invocation error.
func NewMCPToolFailedError(toolName string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMCPToolFailed,
		Message:   "MCP tool call error",
		Details:   fmt.Sprintf("tool: %s, error: %s", toolName, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewToolNotFoundError creates a non-retryable unknown tool error.
func NewToolNotFoundError(toolName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeToolNotFound,
		Message:   "Tool not registered",
		Details:   fmt.Sprintf("tool: %s", toolName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewToolValidationFailedError creates a non-retryable argument validation error.
func NewToolValidationFailedError(toolName, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeToolValidationFailed,
		Message:   "Tool argument validation failed",
		Details:   fmt.Sprintf("tool: %s, %s", toolName, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseQueryFailedError creates a retryable query execution error.
func NewDatabaseQueryFailedError(queryName string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("query: %s, error: %s", queryName, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidQueryNameError creates a non-retryable unknown query error.
func NewInvalidQueryNameError(queryName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQueryName,
		Message:   "Unsupported query name",
		Details:   fmt.Sprintf("query: %s", queryName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheFailedError creates a retryable cache access error.
func NewCacheFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheFailed,
		Message:   "Cache access error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTranscriptIndexFailedError creates a retryable transcript indexing error.
func NewTranscriptIndexFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTranscriptIndexFailed,
		Message:   "Transcript indexing error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewHistorySearchFailedError creates a retryable transcript search error.
func NewHistorySearchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeHistorySearchFailed,
		Message:   "Transcript search error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      "AUTHENTICATION_ERROR",
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRealtimeConnectFailed,
		ErrCodeRealtimeStreamClosed,
		ErrCodeSTTStreamFailed,
		ErrCodeLLMCompletionFailed,
		ErrCodeTTSSynthesisFailed,
		ErrCodeDatabaseConnectFailed,
		ErrCodeDatabaseQueryFailed,
		ErrCodeTranscriptIndexFailed,
		ErrCodeHistorySearchFailed,
		ErrCodeCacheFailed:
		return 3 // Retryable technical errors

	case ErrCodeMCPToolFailed:
		return 2

	case ErrCodeLLMTimeout:
		return 1 // one more attempt then surface to the session

	default:
		return 0 // Validation and degraded-mode errors: no retry
	}
}

// ConvertToSessionError converts a StandardError to the wire form published
// on the realtime connection.
func ConvertToSessionError(stdErr *StandardError) *SessionError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &SessionError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		Variables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIG"):
		return "CONFIG"
	case strings.Contains(codeStr, "REALTIME"):
		return "REALTIME"
	case strings.Contains(codeStr, "STT") || strings.Contains(codeStr, "TTS") || strings.Contains(codeStr, "LLM"):
		return "PIPELINE"
	case strings.Contains(codeStr, "MCP") || strings.Contains(codeStr, "TOOL"):
		return "TOOLS"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "CACHE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "TRANSCRIPT"):
		return "SEARCH"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
