// internal/common/realtime/messages.go
package realtime

import "encoding/json"

// Message types exchanged with the media server.
const (
	TypeRegister   = "register"
	TypeRegistered = "registered"
	TypeJob        = "job"
	TypeAccept     = "accept"
	TypeAudio      = "audio"
	TypeEvent      = "event"
	TypeError      = "error"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeClose      = "close"
)

// Envelope is the top-level wire message.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload announces this worker to the media server.
type RegisterPayload struct {
	WorkerName string `json:"workerName"`
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
	Version    string `json:"version,omitempty"`
}

// RegisteredPayload is the server's registration ack.
type RegisteredPayload struct {
	WorkerID string `json:"workerId"`
}

// Job is a room assignment dispatched by the media server.
type Job struct {
	ID       string            `json:"id"`
	RoomName string            `json:"roomName"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AcceptPayload acknowledges a dispatched job.
type AcceptPayload struct {
	JobID string `json:"jobId"`
}

// AudioPayload carries one PCM16 frame, base64-encoded by the JSON codec.
type AudioPayload struct {
	Data       []byte `json:"data"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// EventPayload carries a non-audio session event (transcripts, state, errors).
type EventPayload struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data,omitempty"`
}
