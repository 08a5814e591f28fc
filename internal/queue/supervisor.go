package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amigo-labs/amigo-server/internal/store"
)

// SupervisorConfig tunes the worker pool.
type SupervisorConfig struct {
	// AgentWorkers is the size of the shared agent-processing pool.
	AgentWorkers int
	// DiscoveryInterval is how often the supervisor sweeps for newly
	// created per-session ingestion queues.
	DiscoveryInterval time.Duration
	// WorkerFlagTTL bounds the liveness flag a running ingest worker
	// holds, so a crashed worker's queue is re-adopted after at most one
	// TTL.
	WorkerFlagTTL time.Duration
}

// Supervisor owns the worker goroutines: one for session management, a
// fixed agent-processing pool, and one dynamically spawned worker per
// discovered ingestion queue. Dead workers are restarted; stale liveness
// flags are cleared first.
type Supervisor struct {
	store    store.Store
	fabric   *Fabric
	registry *Registry
	cfg      SupervisorConfig
	wg       sync.WaitGroup
}

// NewSupervisor creates a supervisor; Start spawns the workers.
func NewSupervisor(st store.Store, fabric *Fabric, registry *Registry, cfg SupervisorConfig) *Supervisor {
	if cfg.AgentWorkers <= 0 {
		cfg.AgentWorkers = 2
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = 5 * time.Second
	}
	if cfg.WorkerFlagTTL <= 0 {
		cfg.WorkerFlagTTL = time.Hour
	}
	return &Supervisor{store: st, fabric: fabric, registry: registry, cfg: cfg}
}

// Start launches the static workers and the discovery sweep. Workers stop
// accepting new jobs when ctx is cancelled and finish in-flight work;
// Wait blocks until they are all done.
func (s *Supervisor) Start(ctx context.Context) {
	s.spawnStatic(ctx, "session-mgmt", []string{QueueSessionManagement})
	for i := 0; i < s.cfg.AgentWorkers; i++ {
		s.spawnStatic(ctx, fmt.Sprintf("agent-%d", i), []string{QueueAgentProcessing})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.discoveryLoop(ctx)
	}()

	slog.Info("Worker supervisor started",
		"agent_workers", s.cfg.AgentWorkers,
		"discovery_interval", s.cfg.DiscoveryInterval)
}

// Wait blocks until every worker goroutine has exited.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// spawnStatic runs a worker and restarts it if it exits while the
// supervisor is still running.
func (s *Supervisor) spawnStatic(ctx context.Context, id string, queues []string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ctx.Err() == nil {
			s.runGuarded(ctx, id, queues)
			if ctx.Err() == nil {
				slog.Warn("Worker exited unexpectedly, restarting", "worker_id", id)
				time.Sleep(time.Second)
			}
		}
	}()
}

// runGuarded runs one worker and converts a handler panic into a logged
// restart instead of taking the process down.
func (s *Supervisor) runGuarded(ctx context.Context, id string, queues []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker panicked", "worker_id", id, "panic", r)
		}
	}()
	NewWorker(id, queues, s.fabric, s.registry).Run(ctx)
}

func workerFlagKey(queue string) string { return "worker:" + queue }

// discoveryLoop periodically sweeps the registered ingestion queues and
// adopts any queue without a live worker. The liveness flag is a SET NX
// with TTL, so the sweep is idempotent across supervisors.
func (s *Supervisor) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			slog.Info("Queue discovery stopping", "reason", ctx.Err())
			return
		}
	}
}

func (s *Supervisor) sweep(ctx context.Context) {
	queues, err := s.fabric.SessionQueues(ctx)
	if err != nil {
		slog.Error("Queue discovery sweep failed", "error", err)
		return
	}

	for _, queue := range queues {
		acquired, err := s.store.AcquireLock(ctx, workerFlagKey(queue), "supervisor", s.cfg.WorkerFlagTTL)
		if err != nil {
			slog.Error("Failed to claim ingest queue", "queue", queue, "error", err)
			continue
		}
		if !acquired {
			continue
		}
		slog.Info("Adopting ingestion queue", "queue", queue)
		s.spawnIngest(ctx, queue)
	}
}

// spawnIngest runs a dedicated worker for one ingestion queue. The worker
// heartbeats its liveness flag and clears it on exit so the next sweep can
// respawn it.
func (s *Supervisor) spawnIngest(ctx context.Context, queue string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		flagKey := workerFlagKey(queue)
		heartbeat := time.NewTicker(s.cfg.WorkerFlagTTL / 2)
		defer heartbeat.Stop()

		workerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.runGuarded(workerCtx, "ingest:"+queue, []string{queue})
		}()

		for {
			select {
			case <-heartbeat.C:
				if err := s.store.Expire(ctx, flagKey, s.cfg.WorkerFlagTTL); err != nil {
					slog.Warn("Failed to refresh worker flag", "queue", queue, "error", err)
				}
			case <-done:
				// Clear the stale flag so the sweep can restart the queue.
				cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := s.store.ReleaseLock(cleanupCtx, flagKey, "supervisor"); err != nil {
					slog.Warn("Failed to clear worker flag", "queue", queue, "error", err)
				}
				cleanupCancel()
				return
			}
		}
	}()
}
