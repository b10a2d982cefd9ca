// internal/session/session.go
package session

import (
	"context"
	"encoding/json"
	"time"

	"mcp-voice-agent/internal/common/errors"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/common/metrics"
	"mcp-voice-agent/internal/common/observability"
	"mcp-voice-agent/internal/common/realtime"
	"mcp-voice-agent/internal/models"
	"mcp-voice-agent/internal/pipeline/llm"
	"mcp-voice-agent/internal/pipeline/stt"
	"mcp-voice-agent/internal/pipeline/vad"
	"mcp-voice-agent/internal/tools"
)

// Transport is the outbound side of the media connection.
type Transport interface {
	SendAudio(sessionID string, pcm []byte, sampleRate int) error
	PublishEvent(sessionID, event string, data map[string]interface{}) error
}

// Transcriber is an open speech-to-text stream.
type Transcriber interface {
	SendAudio(chunk []byte) error
	Transcripts() <-chan stt.Transcript
	Close() error
}

// TranscriberFactory opens a new transcription stream for a session.
type TranscriberFactory func(ctx context.Context) (Transcriber, error)

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config ties the pipeline pieces to one room job.
type Config struct {
	SessionID     string
	RoomName      string
	SampleRate    int
	MaxToolRounds int
	Instructions  string
}

// AgentSession runs the voice pipeline for one room:
// inbound audio, VAD, STT, LLM with tool rounds, TTS, outbound audio.
type AgentSession struct {
	config Config

	transport      Transport
	newTranscriber TranscriberFactory
	provider       llm.Provider
	synthesizer    Synthesizer
	registry       *tools.Registry
	store          *Store
	detector       *vad.Detector
	obs            *observability.Observability
	errorHandler   *errors.ErrorHandler
	logger         logger.Logger

	history   []models.Message
	turnCount int
}

// transportPublisher adapts the transport to the error handler's publisher.
type transportPublisher struct {
	t Transport
}

func (p transportPublisher) PublishError(ctx context.Context, sessionID string, payload map[string]interface{}) error {
	return p.t.PublishEvent(sessionID, "agent_error", payload)
}

func New(
	config Config,
	transport Transport,
	newTranscriber TranscriberFactory,
	provider llm.Provider,
	synthesizer Synthesizer,
	registry *tools.Registry,
	store *Store,
	detector *vad.Detector,
	obs *observability.Observability,
	log logger.Logger,
) *AgentSession {
	if config.MaxToolRounds == 0 {
		config.MaxToolRounds = 5
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}

	s := &AgentSession{
		config:         config,
		transport:      transport,
		newTranscriber: newTranscriber,
		provider:       provider,
		synthesizer:    synthesizer,
		registry:       registry,
		store:          store,
		detector:       detector,
		obs:            obs,
		errorHandler:   errors.NewErrorHandler(log),
		logger: log.With(map[string]interface{}{
			"sessionId": config.SessionID,
			"room":      config.RoomName,
		}),
	}

	s.history = append(s.history, models.Message{
		Role:    models.RoleSystem,
		Content: config.Instructions,
	})

	return s
}

// Run drives the session until the inbound channel closes or the context is
// cancelled. No greeting is sent; the user speaks first.
func (s *AgentSession) Run(ctx context.Context, inbound <-chan realtime.Envelope) error {
	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Inc()
	closeReason := "remote"
	defer func() {
		metrics.SessionsActive.Dec()
		metrics.SessionsClosed.WithLabelValues(closeReason).Inc()
	}()

	transcriber, err := s.newTranscriber(ctx)
	if err != nil {
		closeReason = "stt_failed"
		return err
	}
	defer transcriber.Close()

	s.logger.Info("session started", nil)
	s.saveState(ctx)

	transcripts := transcriber.Transcripts()

	for {
		select {
		case <-ctx.Done():
			closeReason = "shutdown"
			s.finish(closeReason)
			return ctx.Err()

		case t, ok := <-transcripts:
			if !ok {
				closeReason = "stt_closed"
				s.finish(closeReason)
				return nil
			}
			if !t.Final || t.Text == "" {
				continue
			}
			s.runTurn(ctx, t.Text)

		case env, ok := <-inbound:
			if !ok {
				s.finish(closeReason)
				return nil
			}

			switch env.Type {
			case realtime.TypeAudio:
				s.handleAudio(env, transcriber)

			case realtime.TypeClose:
				closeReason = "remote_close"
				s.finish(closeReason)
				return nil
			}
		}
	}
}

func (s *AgentSession) handleAudio(env realtime.Envelope, transcriber Transcriber) {
	var payload realtime.AudioPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}

	event := s.detector.Process(payload.Data)
	switch event {
	case vad.EventSpeechStart:
		_ = s.transport.PublishEvent(s.config.SessionID, "speech_start", nil)
		// The onset frames buffered while the detector confirmed speech,
		// current frame included, carry the first syllable.
		for _, frame := range s.detector.DrainRamp() {
			s.forwardAudio(transcriber, frame)
		}
		return
	case vad.EventSpeechEnd:
		_ = s.transport.PublishEvent(s.config.SessionID, "speech_end", nil)
	}

	// Only speech frames go to the transcriber; silence between utterances
	// is dropped.
	if s.detector.InSpeech() || event == vad.EventSpeechEnd {
		s.forwardAudio(transcriber, payload.Data)
	}
}

func (s *AgentSession) forwardAudio(transcriber Transcriber, frame []byte) {
	if err := transcriber.SendAudio(frame); err != nil {
		s.logger.Warn("failed to forward audio to stt", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// runTurn takes one final user transcript through the LLM tool loop and
// speaks the answer.
func (s *AgentSession) runTurn(ctx context.Context, userText string) {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.PipelineStageDuration.WithLabelValues("turn").Observe(time.Since(start).Seconds())
		if s.obs != nil {
			s.obs.RecordTurnProcessed(ctx, status)
			s.obs.RecordTurnDuration(ctx, time.Since(start), status)
		}
	}()

	s.turnCount++
	s.logger.Info("user turn", map[string]interface{}{
		"turn": s.turnCount,
		"text": userText,
	})

	s.appendAndRecord(ctx, models.Message{Role: models.RoleUser, Content: userText})
	_ = s.transport.PublishEvent(s.config.SessionID, "user_transcript", map[string]interface{}{
		"text": userText,
	})

	answer, err := s.complete(ctx)
	if err != nil {
		status = "error"
		s.errorHandler.HandleSessionError(ctx, transportPublisher{s.transport}, s.config.SessionID, err)
		return
	}

	s.appendAndRecord(ctx, models.Message{Role: models.RoleAssistant, Content: answer})
	_ = s.transport.PublishEvent(s.config.SessionID, "agent_transcript", map[string]interface{}{
		"text": answer,
	})

	s.speak(ctx, answer)
	s.saveState(ctx)
}

// complete runs the LLM with tool rounds until it produces a text answer.
func (s *AgentSession) complete(ctx context.Context) (string, error) {
	var decls []models.ToolDeclaration
	if s.registry != nil {
		decls = s.registry.Declarations()
	}

	for round := 0; round < s.config.MaxToolRounds; round++ {
		llmStart := time.Now()
		completion, err := s.provider.Complete(ctx, &llm.Request{
			Messages: s.history,
			Tools:    decls,
		})
		metrics.PipelineStageDuration.WithLabelValues("llm").Observe(time.Since(llmStart).Seconds())
		if err != nil {
			return "", err
		}

		if len(completion.ToolCalls) == 0 {
			return completion.Text, nil
		}

		s.history = append(s.history, models.Message{
			Role:      models.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			s.history = append(s.history, s.invokeTool(ctx, call))
		}
	}

	// Tool budget exhausted; ask for a plain answer without tools.
	completion, err := s.provider.Complete(ctx, &llm.Request{Messages: s.history})
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

func (s *AgentSession) invokeTool(ctx context.Context, call models.ToolCall) models.Message {
	s.logger.Info("tool call", map[string]interface{}{
		"tool": call.Name,
	})

	result, err := s.registry.Invoke(ctx, call.Name, call.Arguments)

	var content string
	if err != nil {
		// Tool failures go back to the model as results, never up the stack.
		content = `{"error":` + jsonString(err.Error()) + `}`
	} else {
		raw, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			content = `{"error":"unencodable tool result"}`
		} else {
			content = string(raw)
		}
	}

	return models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

func (s *AgentSession) speak(ctx context.Context, text string) {
	if text == "" {
		return
	}

	ttsStart := time.Now()
	audio, err := s.synthesizer.Synthesize(ctx, text)
	metrics.PipelineStageDuration.WithLabelValues("tts").Observe(time.Since(ttsStart).Seconds())
	if err != nil {
		s.logger.Error("speech synthesis failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if len(audio) == 0 {
		return
	}

	if err := s.transport.SendAudio(s.config.SessionID, audio, s.config.SampleRate); err != nil {
		s.logger.Error("failed to send audio", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *AgentSession) appendAndRecord(ctx context.Context, msg models.Message) {
	s.history = append(s.history, msg)

	if err := s.store.RecordTurn(ctx, models.TranscriptEntry{
		SessionID: s.config.SessionID,
		RoomName:  s.config.RoomName,
		Role:      msg.Role,
		Text:      msg.Content,
	}); err != nil {
		s.logger.Warn("failed to record transcript", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *AgentSession) saveState(ctx context.Context) {
	if err := s.store.SaveState(ctx, models.SessionState{
		SessionID: s.config.SessionID,
		RoomName:  s.config.RoomName,
		TurnCount: s.turnCount,
	}); err != nil {
		s.logger.Warn("failed to save session state", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *AgentSession) finish(reason string) {
	s.logger.Info("session finished", map[string]interface{}{
		"reason": reason,
		"turns":  s.turnCount,
	})
}

func jsonString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}
