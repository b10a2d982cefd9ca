// internal/pipeline/stt/stream.go
package stt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mcp-voice-agent/internal/common/logger"
)

var (
	ErrSTTStreamFailed = errors.New("STT_STREAM_FAILED")
)

// Config configures the realtime transcription stream.
type Config struct {
	APIKey     string
	WSEndpoint string
	SampleRate int
}

// Transcript is one recognition result from the stream.
type Transcript struct {
	Text  string
	Final bool
}

// Stream is a websocket connection to the realtime transcription service.
// Audio goes in as base64-encoded PCM16 chunks; partial and final
// transcripts come out on Transcripts().
type Stream struct {
	config *Config
	logger logger.Logger

	conn        *websocket.Conn
	writeMu     sync.Mutex
	transcripts chan Transcript

	closed    chan struct{}
	closeOnce sync.Once
}

// wire format

type audioMessage struct {
	AudioData string `json:"audio_data"`
}

type terminateMessage struct {
	TerminateSession bool `json:"terminate_session"`
}

type serverMessage struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Error       string `json:"error"`
}

// Connect opens the stream and completes the session-begin handshake.
func Connect(ctx context.Context, config *Config, log logger.Logger) (*Stream, error) {
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}

	header := http.Header{}
	if config.APIKey != "" {
		header.Set("Authorization", config.APIKey)
	}

	url := fmt.Sprintf("%s?sample_rate=%d", config.WSEndpoint, config.SampleRate)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrSTTStreamFailed, err)
	}

	// Session begins with a server hello before any transcripts flow.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello serverMessage
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake: %v", ErrSTTStreamFailed, err)
	}
	conn.SetReadDeadline(time.Time{})

	if hello.Error != "" {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrSTTStreamFailed, hello.Error)
	}
	if hello.MessageType != "SessionBegins" {
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected handshake message %q", ErrSTTStreamFailed, hello.MessageType)
	}

	s := &Stream{
		config:      config,
		logger:      log.With(map[string]interface{}{"component": "stt"}),
		conn:        conn,
		transcripts: make(chan Transcript, 16),
		closed:      make(chan struct{}),
	}

	go s.readLoop(ctx)

	return s, nil
}

// SendAudio submits one PCM16 chunk for recognition.
func (s *Stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closed:
		return fmt.Errorf("%w: stream closed", ErrSTTStreamFailed)
	default:
	}

	msg := audioMessage{AudioData: base64.StdEncoding.EncodeToString(chunk)}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: write: %v", ErrSTTStreamFailed, err)
	}
	return nil
}

// Transcripts returns the stream of partial and final recognition results.
// The channel closes when the stream ends.
func (s *Stream) Transcripts() <-chan Transcript {
	return s.transcripts
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.transcripts)

	for {
		var msg serverMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.closed:
			default:
				s.logger.Warn("stt read loop ended", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		switch msg.MessageType {
		case "PartialTranscript":
			if msg.Text == "" {
				continue
			}
			s.deliver(ctx, Transcript{Text: msg.Text, Final: false})

		case "FinalTranscript":
			s.deliver(ctx, Transcript{Text: msg.Text, Final: true})

		case "SessionTerminated":
			return

		default:
			if msg.Error != "" {
				s.logger.Error("stt stream error", map[string]interface{}{
					"error": msg.Error,
				})
				return
			}
		}
	}
}

func (s *Stream) deliver(ctx context.Context, t Transcript) {
	select {
	case s.transcripts <- t:
	case <-ctx.Done():
	case <-s.closed:
	}
}

// Close terminates the session and releases the connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.writeMu.Lock()
		_ = s.conn.WriteJSON(terminateMessage{TerminateSession: true})
		s.writeMu.Unlock()

		s.conn.Close()
	})
	return nil
}
