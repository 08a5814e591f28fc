// Package inference defines the boundary to the hosted speech and language
// models: transcription, chat completion with tool calling, and speech
// synthesis.
package inference

import (
	"context"
	"encoding/json"
	"iter"
)

// ChatMessage is one message in a completion request. Tool result messages
// carry the ToolCallID of the call they answer.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDefinition describes a function the model may call. Parameters is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Completion is the result of a chat completion. ToolCalls is non-empty
// when the model chose to call tools instead of (or before) answering.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Service is the model-provider boundary.
type Service interface {
	// Transcribe converts a WAV recording to text.
	Transcribe(ctx context.Context, wav []byte) (string, error)

	// Complete runs one chat completion with optional tool definitions.
	Complete(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*Completion, error)

	// StreamComplete streams a completion's text deltas. Tool calls are not
	// surfaced on the streaming path; callers that need them follow up with
	// Complete on the same messages.
	StreamComplete(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) iter.Seq2[string, error]

	// Synthesize renders text to speech and returns the encoded audio.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
