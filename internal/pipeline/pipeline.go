// Package pipeline implements the queued job handlers that move audio from
// ingestion through transcription and the agent to the response fan-out.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amigo-labs/amigo-server/internal/agent"
	"github.com/amigo-labs/amigo-server/internal/audio"
	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/fanout"
	"github.com/amigo-labs/amigo-server/internal/inference"
	"github.com/amigo-labs/amigo-server/internal/profile"
	"github.com/amigo-labs/amigo-server/internal/queue"
	"github.com/amigo-labs/amigo-server/internal/session"
	"github.com/amigo-labs/amigo-server/internal/store"
)

// Pipeline holds the collaborators the job handlers need.
type Pipeline struct {
	store     store.Store
	sessions  *session.Registry
	audio     *audio.Accumulator
	fabric    *queue.Fabric
	engine    *agent.Engine
	broker    *fanout.Broker
	profiles  profile.Store
	inference inference.Service
	chunkTTL  time.Duration
}

// New creates a pipeline.
func New(st store.Store, sessions *session.Registry, acc *audio.Accumulator,
	fabric *queue.Fabric, engine *agent.Engine, broker *fanout.Broker,
	profiles profile.Store, svc inference.Service, chunkTTL time.Duration) *Pipeline {

	if chunkTTL <= 0 {
		chunkTTL = 5 * time.Minute
	}
	return &Pipeline{
		store:     st,
		sessions:  sessions,
		audio:     acc,
		fabric:    fabric,
		engine:    engine,
		broker:    broker,
		profiles:  profiles,
		inference: svc,
		chunkTTL:  chunkTTL,
	}
}

// Register installs the pipeline's handlers in the job registry.
func (p *Pipeline) Register(reg *queue.Registry) {
	reg.Register(domain.JobSessionInit, p.HandleSessionInit)
	reg.Register(domain.JobIngestChunk, p.HandleIngestChunk)
	reg.Register(domain.JobAgentTurn, p.HandleAgentTurn)
	reg.Register(domain.JobSessionEnd, p.HandleSessionEnd)
}

// HandleSessionInit creates the session record, loads the durable profile
// snapshot, and emits the greeting.
func (p *Pipeline) HandleSessionInit(ctx context.Context, job *domain.Job) error {
	var payload domain.SessionInitPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode session_init payload: %w", err)
	}

	sess, err := p.sessions.Create(ctx, payload.SessionID, payload.DeviceID, payload.UserID)
	if err != nil {
		return fmt.Errorf("create session %s: %w", payload.SessionID, err)
	}

	stored, err := p.profiles.Get(ctx, sess.UserID)
	switch {
	case err == nil:
		sess.Profile = *stored
	case errors.Is(err, profile.ErrNotFound):
		// First visit, the default snapshot stands.
	default:
		slog.Error("Failed to load profile, continuing with defaults",
			"user_id", sess.UserID, "error", err)
	}

	greeting, err := p.engine.Init(ctx, sess, func(delta string) {
		_ = p.broker.Publish(ctx, fanout.Message{
			Type:      fanout.TypeResponseChunk,
			SessionID: sess.ID,
			Text:      delta,
		})
	})
	if err != nil {
		return fmt.Errorf("greet session %s: %w", sess.ID, err)
	}

	if err := p.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	p.publishReply(ctx, sess.ID, greeting)
	return nil
}

// HandleIngestChunk consumes one audio chunk, appends it to the session
// buffer, and dispatches the buffer once it holds a full utterance. A chunk
// key already consumed by an earlier delivery is skipped.
func (p *Pipeline) HandleIngestChunk(ctx context.Context, job *domain.Job) error {
	var payload domain.IngestChunkPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode ingest_chunk payload: %w", err)
	}

	chunk, err := p.store.GetDel(ctx, payload.ChunkKey)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Audio chunk already consumed or expired, skipping",
			"session_id", payload.SessionID, "chunk_key", payload.ChunkKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read chunk %s: %w", payload.ChunkKey, err)
	}

	size, err := p.audio.Append(ctx, payload.SessionID, chunk)
	if err != nil {
		return err
	}
	if !p.audio.Ready(size) {
		return nil
	}
	return p.dispatchBuffer(ctx, payload.SessionID)
}

// dispatchBuffer drains the session buffer into an utterance key and queues
// an agent turn for it.
func (p *Pipeline) dispatchBuffer(ctx context.Context, sessionID string) error {
	pcm, err := p.audio.Drain(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		// A concurrent dispatch won the drain.
		return nil
	}
	if err != nil {
		return fmt.Errorf("drain buffer for session %s: %w", sessionID, err)
	}

	audioKey := "utterance:" + uuid.NewString()
	if err := p.store.Set(ctx, audioKey, pcm, p.chunkTTL); err != nil {
		return fmt.Errorf("stage utterance for session %s: %w", sessionID, err)
	}

	_, err = p.fabric.Enqueue(ctx, queue.QueueAgentProcessing, domain.JobAgentTurn, domain.AgentTurnPayload{
		SessionID: sessionID,
		AudioKey:  audioKey,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("enqueue agent turn for session %s: %w", sessionID, err)
	}
	slog.Debug("Dispatched utterance", "session_id", sessionID, "bytes", len(pcm))
	return nil
}

// HandleAgentTurn runs one conversation turn: transcribe the staged audio
// (or take the direct text), run the agent, persist the session, and fan
// out the reply as text and synthesized speech. Turns for one session are
// serialized by the session lock.
func (p *Pipeline) HandleAgentTurn(ctx context.Context, job *domain.Job) error {
	var payload domain.AgentTurnPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode agent_turn payload: %w", err)
	}

	release, err := p.sessions.Lock(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("lock session %s: %w", payload.SessionID, err)
	}
	defer release()

	sess, err := p.sessions.Load(ctx, payload.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Agent turn for expired session, skipping", "session_id", payload.SessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session %s: %w", payload.SessionID, err)
	}
	if !sess.Active {
		slog.Info("Agent turn for ended session, skipping", "session_id", sess.ID)
		return nil
	}

	text := payload.Text
	if payload.AudioKey != "" {
		text, err = p.transcribeStaged(ctx, sess.ID, payload.AudioKey)
		if err != nil {
			p.publishError(ctx, sess.ID, "transcription failed")
			return err
		}
		if text == "" {
			slog.Debug("Empty transcription, skipping turn", "session_id", sess.ID)
			return nil
		}
		_ = p.broker.Publish(ctx, fanout.Message{
			Type:      fanout.TypeTranscription,
			SessionID: sess.ID,
			Text:      text,
		})
	}
	if text == "" {
		return nil
	}

	reply, err := p.engine.Turn(ctx, sess, text, func(delta string) {
		_ = p.broker.Publish(ctx, fanout.Message{
			Type:      fanout.TypeResponseChunk,
			SessionID: sess.ID,
			Text:      delta,
		})
	})
	if err != nil {
		return fmt.Errorf("agent turn for session %s: %w", sess.ID, err)
	}

	if err := p.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	p.publishReply(ctx, sess.ID, reply)
	return nil
}

// transcribeStaged reads the staged utterance and runs speech recognition.
// A key consumed by an earlier delivery yields an empty transcription.
func (p *Pipeline) transcribeStaged(ctx context.Context, sessionID, audioKey string) (string, error) {
	pcm, err := p.store.GetDel(ctx, audioKey)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Staged utterance already consumed or expired, skipping",
			"session_id", sessionID, "audio_key", audioKey)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read staged utterance %s: %w", audioKey, err)
	}

	wav := audio.WAV(pcm, p.audio.Format())
	text, err := p.inference.Transcribe(ctx, wav)
	if err != nil {
		return "", fmt.Errorf("transcribe utterance for session %s: %w", sessionID, err)
	}
	return text, nil
}

// HandleSessionEnd flushes any meaningful buffered remnant as a final turn,
// closes out the session, and announces the end on the fan-out channel.
func (p *Pipeline) HandleSessionEnd(ctx context.Context, job *domain.Job) error {
	var payload domain.SessionEndPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode session_end payload: %w", err)
	}

	size, err := p.audio.Size(ctx, payload.SessionID)
	if err != nil {
		slog.Error("Failed to size remnant buffer", "session_id", payload.SessionID, "error", err)
	}
	if p.audio.Meaningful(size) {
		if err := p.dispatchBuffer(ctx, payload.SessionID); err != nil {
			slog.Error("Failed to flush remnant buffer", "session_id", payload.SessionID, "error", err)
		}
	} else if size > 0 {
		if err := p.audio.Discard(ctx, payload.SessionID); err != nil {
			slog.Warn("Failed to discard remnant buffer", "session_id", payload.SessionID, "error", err)
		}
	}

	sess, err := p.sessions.End(ctx, payload.SessionID, payload.Reason)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Session already expired at end", "session_id", payload.SessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("end session %s: %w", payload.SessionID, err)
	}

	if stats, err := p.audio.Stats(ctx, sess.ID); err == nil && len(stats) > 0 {
		slog.Info("Session closed", "session_id", sess.ID, "reason", payload.Reason,
			"chunks_received", stats["chunks_received"],
			"buffers_dispatched", stats["buffers_dispatched"])
	} else {
		slog.Info("Session closed", "session_id", sess.ID, "reason", payload.Reason)
	}

	_ = p.broker.Publish(ctx, fanout.Message{
		Type:      fanout.TypeSessionEnded,
		SessionID: sess.ID,
		Reason:    payload.Reason,
	})
	return nil
}

// publishReply fans out the reply text and, when synthesis succeeds, the
// spoken audio. Synthesis failure degrades to text-only delivery.
func (p *Pipeline) publishReply(ctx context.Context, sessionID, reply string) {
	_ = p.broker.Publish(ctx, fanout.Message{
		Type:      fanout.TypeAgentResponse,
		SessionID: sessionID,
		Text:      reply,
	})

	speech, err := p.inference.Synthesize(ctx, reply)
	if err != nil {
		slog.Error("Speech synthesis failed, text-only reply",
			"session_id", sessionID, "error", err)
		return
	}
	_ = p.broker.Publish(ctx, fanout.Message{
		Type:      fanout.TypeAudioResponse,
		SessionID: sessionID,
		Audio:     speech,
	})
}

func (p *Pipeline) publishError(ctx context.Context, sessionID, text string) {
	_ = p.broker.Publish(ctx, fanout.Message{
		Type:      fanout.TypeError,
		SessionID: sessionID,
		Text:      text,
	})
}
