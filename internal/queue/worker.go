package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/amigo-labs/amigo-server/internal/domain"
)

// popWait bounds each blocking pop so workers notice context cancellation
// and supervisor shutdown promptly.
const popWait = 2 * time.Second

// Worker drains one or more queues, dispatching each job through the
// registry. A job is delivered to exactly one worker at a time; handler
// failures are logged with full context and dead-lettered, never retried.
type Worker struct {
	id       string
	queues   []string
	fabric   *Fabric
	registry *Registry
}

// NewWorker creates a worker bound to the given queues.
func NewWorker(id string, queues []string, fabric *Fabric, registry *Registry) *Worker {
	return &Worker{id: id, queues: queues, fabric: fabric, registry: registry}
}

// Run processes jobs until the context is cancelled. An in-flight job is
// allowed to finish before Run returns.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("Worker started", "worker_id", w.id, "queues", w.queues)
	for {
		if ctx.Err() != nil {
			slog.Info("Worker stopping", "worker_id", w.id, "reason", ctx.Err())
			return
		}

		job, queue, err := w.fabric.Dequeue(ctx, w.queues, popWait)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Worker stopping", "worker_id", w.id, "reason", ctx.Err())
				return
			}
			slog.Error("Worker dequeue failed", "worker_id", w.id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, job, queue)
	}
}

func (w *Worker) process(ctx context.Context, job *domain.Job, queue string) {
	start := time.Now()
	if err := w.registry.Dispatch(ctx, job); err != nil {
		slog.Error("Job failed",
			"worker_id", w.id,
			"job_id", job.ID,
			"kind", job.Kind,
			"queue", queue,
			"payload", string(job.Payload),
			"error", err)
		w.fabric.DeadLetter(ctx, job, queue, err)
		return
	}
	slog.Debug("Job completed",
		"worker_id", w.id,
		"job_id", job.ID,
		"kind", job.Kind,
		"queue", queue,
		"duration", time.Since(start))
}
