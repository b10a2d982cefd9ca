// internal/common/errors/handler.go
package errors

import (
	"context"
	"time"
)

// EventPublisher publishes agent error events to the realtime connection.
type EventPublisher interface {
	PublishError(ctx context.Context, sessionID string, payload map[string]interface{}) error
}

// ErrorHandler reports session step errors with standardized error handling.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleSessionError normalizes, logs, and publishes any error raised by a
// session step. Publish failures are logged and swallowed so error reporting
// never takes the session down.
func (h *ErrorHandler) HandleSessionError(ctx context.Context, pub EventPublisher, sessionID string, err error) *SessionError {
	stdErr := h.normalizeError(err)
	sessErr := ConvertToSessionError(stdErr)

	h.logError(sessionID, stdErr, sessErr)

	if pub != nil {
		if pubErr := pub.PublishError(ctx, sessionID, sessErr.ToEventPayload()); pubErr != nil {
			h.logger.Error("Failed to publish session error event", map[string]interface{}{
				"sessionId": sessionID,
				"errorCode": sessErr.Code,
				"error":     pubErr.Error(),
			})
		}
	}

	return sessErr
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *ErrorHandler) logError(sessionID string, stdErr *StandardError, sessErr *SessionError) {
	h.logger.Error("Session step failed", map[string]interface{}{
		"sessionId":     sessionID,
		"errorCode":     string(stdErr.Code),
		"message":       sessErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       GetRetryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
	})
}
