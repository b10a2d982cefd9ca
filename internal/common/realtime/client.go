// internal/common/realtime/client.go
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"mcp-voice-agent/internal/common/errors"
	"mcp-voice-agent/internal/common/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client wraps the media-server websocket connection with enhanced error
// handling and retry logic.
type Client struct {
	config *ClientConfig
	logger *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	jobs chan Job

	sessionsMu sync.Mutex
	sessions   map[string]chan Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

// ClientConfig holds configuration for the media-server client.
type ClientConfig struct {
	ServerURL         string
	APIKey            string
	APISecret         string
	WorkerName        string
	ConnectionTimeout time.Duration
	PingInterval      time.Duration
	RetryConfig       *RetryConfig
}

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig provides sensible defaults for reconnect behavior.
var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// NewClient creates a media-server client using explicit configuration.
func NewClient(config *ClientConfig, logger *zap.Logger) *Client {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig
	}
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 10 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 15 * time.Second
	}

	return &Client{
		config:   config,
		logger:   logger,
		jobs:     make(chan Job, 16),
		sessions: make(map[string]chan Envelope),
		closed:   make(chan struct{}),
	}
}

// Connect dials the media server, registers the worker, and waits for the
// registration ack. Transient dial failures are retried with exponential
// backoff.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.RealtimeReconnects.Inc()

			delay := c.config.RetryConfig.BaseDelay * time.Duration(1<<(attempt-1))
			if delay > c.config.RetryConfig.MaxDelay {
				delay = c.config.RetryConfig.MaxDelay
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("connect cancelled after %d attempts: %w", attempt, ctx.Err())
			}
		}

		err := c.dialAndRegister(ctx)
		if err == nil {
			go c.readLoop()
			go c.pingLoop()
			return nil
		}

		lastErr = err
		if !isRetryableTransportError(err) {
			return c.mapTransportError(err, "connect", attempt)
		}

		c.logger.Warn("media server connect failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return errors.NewRealtimeConnectFailedError(
		fmt.Errorf("connect failed after %d retries: %w", c.config.RetryConfig.MaxRetries, lastErr))
}

func (c *Client) dialAndRegister(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.config.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial media server at %s: %w", c.config.ServerURL, err)
	}

	register, _ := json.Marshal(RegisterPayload{
		WorkerName: c.config.WorkerName,
		APIKey:     c.config.APIKey,
		APISecret:  c.config.APISecret,
	})
	if err := conn.WriteJSON(Envelope{Type: TypeRegister, Payload: register}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send register: %w", err)
	}

	// Registration ack doubles as the connection health check.
	conn.SetReadDeadline(time.Now().Add(c.config.ConnectionTimeout))
	var ack Envelope
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read registration ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if ack.Type != TypeRegistered {
		conn.Close()
		if ack.Type == TypeError {
			return errors.NewAuthenticationError(string(ack.Payload))
		}
		return fmt.Errorf("unexpected registration response type %q", ack.Type)
	}

	var registered RegisteredPayload
	_ = json.Unmarshal(ack.Payload, &registered)

	c.conn = conn
	c.logger.Info("registered with media server",
		zap.String("workerId", registered.WorkerID),
		zap.String("workerName", c.config.WorkerName))
	return nil
}

// Jobs returns the channel of room assignments dispatched by the server.
func (c *Client) Jobs() <-chan Job {
	return c.jobs
}

// AcceptJob acknowledges a dispatched job before opening a session for it.
func (c *Client) AcceptJob(jobID string) error {
	payload, _ := json.Marshal(AcceptPayload{JobID: jobID})
	return c.write(Envelope{Type: TypeAccept, Payload: payload})
}

// RegisterSession routes inbound messages for the session to the returned
// channel. The caller must call the returned func when the session ends.
func (c *Client) RegisterSession(sessionID string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, 64)

	c.sessionsMu.Lock()
	c.sessions[sessionID] = ch
	c.sessionsMu.Unlock()

	return ch, func() {
		c.sessionsMu.Lock()
		if cur, ok := c.sessions[sessionID]; ok && cur == ch {
			delete(c.sessions, sessionID)
			close(ch)
		}
		c.sessionsMu.Unlock()
	}
}

// SendAudio publishes one synthesized PCM16 frame to the session.
func (c *Client) SendAudio(sessionID string, pcm []byte, sampleRate int) error {
	payload, _ := json.Marshal(AudioPayload{Data: pcm, SampleRate: sampleRate})
	return c.write(Envelope{Type: TypeAudio, SessionID: sessionID, Payload: payload})
}

// PublishEvent publishes a named session event (transcripts, state changes).
func (c *Client) PublishEvent(sessionID, event string, data map[string]interface{}) error {
	payload, _ := json.Marshal(EventPayload{Event: event, Data: data})
	return c.write(Envelope{Type: TypeEvent, SessionID: sessionID, Payload: payload})
}

// PublishError implements errors.EventPublisher.
func (c *Client) PublishError(ctx context.Context, sessionID string, payload map[string]interface{}) error {
	return c.PublishEvent(sessionID, "agent_error", payload)
}

func (c *Client) write(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return errors.NewRealtimeStreamClosedError("write on closed connection")
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return errors.NewRealtimeStreamClosedError(err.Error())
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Warn("media server read loop ended", zap.Error(err))
			}
			c.Close()
			return
		}

		switch env.Type {
		case TypeJob:
			var job Job
			if err := json.Unmarshal(env.Payload, &job); err != nil {
				c.logger.Warn("malformed job payload", zap.Error(err))
				continue
			}
			select {
			case c.jobs <- job:
			default:
				c.logger.Warn("job queue full, dropping job", zap.String("jobId", job.ID))
			}

		case TypeAudio, TypeEvent, TypeClose:
			c.dispatch(env)

		case TypePing:
			_ = c.write(Envelope{Type: TypePong})

		case TypePong:
			// keepalive ack, nothing to do

		default:
			c.logger.Debug("ignoring unknown message type", zap.String("type", env.Type))
		}
	}
}

func (c *Client) dispatch(env Envelope) {
	c.sessionsMu.Lock()
	ch, ok := c.sessions[env.SessionID]
	c.sessionsMu.Unlock()

	if !ok {
		return
	}

	select {
	case ch <- env:
	default:
		// Audio is real-time; dropping a frame beats blocking the read loop.
		if env.Type != TypeAudio {
			c.logger.Warn("session channel full, dropping message",
				zap.String("sessionId", env.SessionID),
				zap.String("type", env.Type))
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(Envelope{Type: TypePing}); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close shuts down the connection and all session channels.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.jobs)

		c.sessionsMu.Lock()
		for id, ch := range c.sessions {
			delete(c.sessions, id)
			close(ch)
		}
		c.sessionsMu.Unlock()

		if c.conn != nil {
			c.writeMu.Lock()
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			c.conn.Close()
		}
	})
	return nil
}

// isRetryableTransportError checks if the error is transient and should be retried.
func isRetryableTransportError(err error) bool {
	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
		"bad handshake",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// mapTransportError converts transport errors into standardized application errors.
func (c *Client) mapTransportError(err error, operation string, attempt int) error {
	msg := err.Error()
	lowerMsg := strings.ToLower(msg)

	enhancedMsg := fmt.Sprintf("media server operation '%s' failed", operation)
	if attempt > 0 {
		enhancedMsg += fmt.Sprintf(" after %d attempts", attempt)
	}

	switch {
	case strings.Contains(lowerMsg, "timeout") ||
		strings.Contains(lowerMsg, "deadline exceeded"):
		return errors.NewTimeoutError("media-server", fmt.Errorf("%s: %s", enhancedMsg, msg))

	case strings.Contains(lowerMsg, "permission denied") ||
		strings.Contains(lowerMsg, "unauthorized") ||
		strings.Contains(lowerMsg, "authentication"):
		return errors.NewAuthenticationError(fmt.Sprintf("%s: %s", enhancedMsg, msg))

	default:
		return errors.NewRealtimeConnectFailedError(fmt.Errorf("%s: %s", enhancedMsg, msg))
	}
}
