// Package fanout delivers per-session response messages from pipeline
// workers to whichever connection currently serves the session. Delivery is
// fire-and-forget: messages published with no subscriber are dropped, and a
// late subscriber never sees earlier messages.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amigo-labs/amigo-server/internal/store"
)

// Message types emitted by the pipeline.
const (
	// TypeTranscription carries the recognized text of the child's speech.
	TypeTranscription = "transcription"
	// TypeResponseChunk carries one streamed text delta of the reply.
	TypeResponseChunk = "response_chunk"
	// TypeAgentResponse carries the complete reply text.
	TypeAgentResponse = "agent_response"
	// TypeAudioResponse carries the synthesized speech for the reply.
	TypeAudioResponse = "audio_response"
	// TypeSessionEnded signals that the session was closed out.
	TypeSessionEnded = "session_ended"
	// TypeError reports a processing failure for this session.
	TypeError = "error"
)

// Message is the fan-out envelope. Audio is carried inline; JSON encoding
// base64s it on the wire.
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text,omitempty"`
	Audio     []byte    `json:"audio,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Broker publishes and subscribes per-session message channels on the
// store's pub/sub fabric.
type Broker struct {
	store store.Store
}

// NewBroker creates a broker over the given store.
func NewBroker(st store.Store) *Broker {
	return &Broker{store: st}
}

func channel(sessionID string) string { return "updates:" + sessionID }

// Publish sends a message on the session's channel. A missing subscriber is
// not an error.
func (b *Broker) Publish(ctx context.Context, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode fanout message: %w", err)
	}
	if err := b.store.Publish(ctx, channel(msg.SessionID), data); err != nil {
		return fmt.Errorf("publish to %s: %w", channel(msg.SessionID), err)
	}
	return nil
}

// Subscribe returns a channel of decoded messages for a session. The
// subscription ends when ctx is canceled or Close is called on the returned
// subscription.
func (b *Broker) Subscribe(ctx context.Context, sessionID string) (<-chan Message, func(), error) {
	sub, err := b.store.Subscribe(ctx, channel(sessionID))
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe to %s: %w", channel(sessionID), err)
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		for data := range sub.C {
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("Dropping undecodable fanout message",
					"session_id", sessionID, "error", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub.Close, nil
}
