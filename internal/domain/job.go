package domain

import (
	"encoding/json"
	"time"
)

// JobKind is the closed set of work the queue fabric can carry. Handlers
// are registered per kind; there is no dispatch by function name.
type JobKind string

const (
	// JobSessionInit creates the agent session and emits the greeting.
	JobSessionInit JobKind = "session_init"
	// JobIngestChunk appends one audio chunk to the session buffer and
	// dispatches the buffer when it crosses the utterance threshold.
	JobIngestChunk JobKind = "ingest_chunk"
	// JobAgentTurn runs one conversation turn from buffered audio or text.
	JobAgentTurn JobKind = "agent_turn"
	// JobSessionEnd flushes remaining audio and closes out the session.
	JobSessionEnd JobKind = "session_end"
)

// Job is the wire envelope for queued work. Delivery is at-least-once, so
// payloads reference store keys that tolerate re-reads rather than carrying
// one-shot state inline.
type Job struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// SessionInitPayload is the payload for JobSessionInit.
type SessionInitPayload struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	UserID    string `json:"user_id,omitempty"`
}

// IngestChunkPayload is the payload for JobIngestChunk. ChunkKey points at
// the raw audio bytes in the store; the key stays valid until consumed.
type IngestChunkPayload struct {
	SessionID string    `json:"session_id"`
	ChunkKey  string    `json:"chunk_key"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentTurnPayload is the payload for JobAgentTurn. Exactly one of AudioKey
// and Text is set: AudioKey references a drained buffer awaiting
// transcription, Text carries a direct text utterance.
type AgentTurnPayload struct {
	SessionID string    `json:"session_id"`
	AudioKey  string    `json:"audio_key,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEndPayload is the payload for JobSessionEnd.
type SessionEndPayload struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	Reason    string `json:"reason"`
}
