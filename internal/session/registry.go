// Package session provides the authoritative session registry backed by
// the expiring key-value fabric, plus the per-session lock that serializes
// conversation turns.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amigo-labs/amigo-server/internal/domain"
	"github.com/amigo-labs/amigo-server/internal/store"
)

// ErrVersionConflict is returned by Save when the stored session moved
// under the caller. The caller should reload, reapply, and save again.
var ErrVersionConflict = errors.New("session: version conflict")

// ErrLockBusy is returned when the per-session lock cannot be acquired
// within the lock wait.
var ErrLockBusy = errors.New("session: lock busy")

// Config holds registry TTLs.
type Config struct {
	// ActiveTTL is the inactivity window for live sessions (re-armed on
	// every save).
	ActiveTTL time.Duration
	// EndedTTL keeps ended sessions around for inspection.
	EndedTTL time.Duration
	// LockTTL bounds how long a crashed holder can pin a session lock.
	LockTTL time.Duration
	// LockWait bounds how long Lock spins for a busy lock.
	LockWait time.Duration
}

// Registry persists sessions as whole JSON records with expiring keys.
// Every mutation is a read-modify-write of the full record; Save carries
// an optimistic version check so concurrent writers fail loudly instead of
// silently losing updates.
type Registry struct {
	store store.Store
	cfg   Config
}

// NewRegistry creates a registry over the given store.
func NewRegistry(st store.Store, cfg Config) *Registry {
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = time.Hour
	}
	if cfg.EndedTTL <= 0 {
		cfg.EndedTTL = 30 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 30 * time.Second
	}
	return &Registry{store: st, cfg: cfg}
}

func sessionKey(sessionID string) string { return "session:" + sessionID }
func lockKey(sessionID string) string    { return "lock:session:" + sessionID }

// Create builds a new active session and persists it.
func (r *Registry) Create(ctx context.Context, sessionID, deviceID, userID string) (*domain.Session, error) {
	sess := domain.NewSession(sessionID, deviceID, userID)
	if err := r.write(ctx, sess, r.cfg.ActiveTTL); err != nil {
		return nil, err
	}
	slog.Info("Session created",
		"session_id", sess.ID, "device_id", sess.DeviceID, "user_id", sess.UserID)
	return sess, nil
}

// Load returns the stored session or store.ErrNotFound.
func (r *Registry) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := r.store.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// Save writes the session back, re-arming its TTL. The stored version must
// match the session's version; on success the version is bumped.
func (r *Registry) Save(ctx context.Context, sess *domain.Session) error {
	stored, err := r.Load(ctx, sess.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if stored != nil && stored.Version != sess.Version {
		return fmt.Errorf("%w: session %s stored=%d ours=%d",
			ErrVersionConflict, sess.ID, stored.Version, sess.Version)
	}

	sess.Version++
	ttl := r.cfg.ActiveTTL
	if !sess.Active {
		ttl = r.cfg.EndedTTL
	}
	return r.write(ctx, sess, ttl)
}

func (r *Registry) write(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := r.store.Set(ctx, sessionKey(sess.ID), data, ttl); err != nil {
		return fmt.Errorf("persist session %s: %w", sess.ID, err)
	}
	return nil
}

// End marks the session inactive and re-persists it with the shorter
// ended-session TTL.
func (r *Registry) End(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	sess, err := r.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.End(reason)
	if err := r.Save(ctx, sess); err != nil {
		return nil, err
	}
	slog.Info("Session ended", "session_id", sessionID, "reason", reason)
	return sess, nil
}

// Lock acquires the per-session mutex, spinning with backoff up to the
// configured wait. The returned release func is safe to call once; the
// token check means an expired lock reacquired elsewhere is never released
// by us.
func (r *Registry) Lock(ctx context.Context, sessionID string) (func(), error) {
	token := uuid.NewString()
	key := lockKey(sessionID)

	delay := 50 * time.Millisecond
	deadline := time.Now().Add(r.cfg.LockWait)
	for {
		acquired, err := r.store.AcquireLock(ctx, key, token, r.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire session lock %s: %w", sessionID, err)
		}
		if acquired {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := r.store.ReleaseLock(releaseCtx, key, token); err != nil {
					slog.Warn("Failed to release session lock", "session_id", sessionID, "error", err)
				}
			}
			return release, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: session %s", ErrLockBusy, sessionID)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if delay < time.Second {
			delay *= 2
		}
	}
}
