// Package queue implements the work queue fabric: named queues with
// at-least-once delivery, a typed job registry, worker goroutines, and the
// supervisor that discovers per-session ingestion queues.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/store"
)

const (
	// QueueSessionManagement carries session init/end jobs.
	QueueSessionManagement = "session_management"
	// QueueAgentProcessing is the shared pool for transcription and agent
	// turns.
	QueueAgentProcessing = "agent_processing"
	// ingestPrefix namespaces the lazily created per-session ingestion
	// queues.
	ingestPrefix = "ingest:"
)

// IngestQueue returns the dedicated ingestion queue name for a device.
func IngestQueue(deviceID string) string { return ingestPrefix + deviceID }

// Fabric enqueues and dequeues typed jobs on named queues. Delivery is
// at-least-once: a job popped by a worker that fails is not retried but
// recorded as a dead letter.
type Fabric struct {
	store         store.Store
	deadLetterTTL time.Duration
}

// NewFabric creates a fabric over the given store.
func NewFabric(st store.Store, deadLetterTTL time.Duration) *Fabric {
	if deadLetterTTL <= 0 {
		deadLetterTTL = 24 * time.Hour
	}
	return &Fabric{store: st, deadLetterTTL: deadLetterTTL}
}

// Enqueue marshals the payload into a job envelope and pushes it on the
// named queue, returning the job id.
func (f *Fabric) Enqueue(ctx context.Context, queue string, kind domain.JobKind, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	job := domain.Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := f.store.Push(ctx, queue, data); err != nil {
		return "", fmt.Errorf("enqueue %s on %s: %w", kind, queue, err)
	}
	slog.Debug("Job enqueued", "job_id", job.ID, "kind", kind, "queue", queue)
	return job.ID, nil
}

// Dequeue blocks up to wait for a job from any of the named queues. It
// returns (nil, "", nil) when the wait elapses idle. A payload that fails
// to decode is dead-lettered and reported as idle so the worker keeps
// going.
func (f *Fabric) Dequeue(ctx context.Context, queues []string, wait time.Duration) (*domain.Job, string, error) {
	queue, data, err := f.store.Pop(ctx, queues, wait)
	if err != nil {
		return nil, "", err
	}
	if data == nil {
		return nil, "", nil
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		slog.Error("Discarding undecodable job", "queue", queue, "error", err)
		f.deadLetterRaw(ctx, queue, data, err)
		return nil, "", nil
	}
	return &job, queue, nil
}

// DeadLetter persists a failed job for inspection. Jobs are never requeued
// automatically.
func (f *Fabric) DeadLetter(ctx context.Context, job *domain.Job, queue string, cause error) {
	record := map[string]any{
		"job_id":      job.ID,
		"kind":        job.Kind,
		"queue":       queue,
		"payload":     json.RawMessage(job.Payload),
		"enqueued_at": job.EnqueuedAt,
		"failed_at":   time.Now(),
		"error":       cause.Error(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal dead letter", "job_id", job.ID, "error", err)
		return
	}
	key := "deadletter:" + job.ID
	if err := f.store.Set(ctx, key, data, f.deadLetterTTL); err != nil {
		slog.Error("Failed to persist dead letter", "job_id", job.ID, "error", err)
	}
}

func (f *Fabric) deadLetterRaw(ctx context.Context, queue string, data []byte, cause error) {
	record := map[string]any{
		"queue":     queue,
		"raw":       string(data),
		"failed_at": time.Now(),
		"error":     cause.Error(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return
	}
	key := "deadletter:raw:" + uuid.NewString()
	if err := f.store.Set(ctx, key, encoded, f.deadLetterTTL); err != nil {
		slog.Error("Failed to persist raw dead letter", "queue", queue, "error", err)
	}
}

// SessionQueues returns the per-session ingestion queues currently
// registered with the fabric.
func (f *Fabric) SessionQueues(ctx context.Context) ([]string, error) {
	return f.store.Queues(ctx, ingestPrefix)
}
