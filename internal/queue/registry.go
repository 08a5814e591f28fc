package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/amigo-labs/amigo-server/internal/domain"
)

// HandlerFunc processes one job. A returned error dead-letters the job.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

// Registry maps job kinds to handlers. Dispatch is resolved through the
// closed JobKind set; there is no dispatch by function name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.JobKind]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.JobKind]HandlerFunc)}
}

// Register binds a handler to a job kind, replacing any previous binding.
func (r *Registry) Register(kind domain.JobKind, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Dispatch runs the handler for the job's kind. An unknown kind is an
// error so the worker can dead-letter it without crashing.
func (r *Registry) Dispatch(ctx context.Context, job *domain.Job) error {
	r.mu.RLock()
	h, ok := r.handlers[job.Kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for job kind %q", job.Kind)
	}
	return h(ctx, job)
}
