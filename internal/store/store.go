// Package store provides the shared persistence fabric: expiring keyed
// records, named work queues, and a publish/subscribe primitive. Session
// state, audio buffers, dead letters, and worker-liveness flags all live
// behind this interface.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is missing or has expired.
var ErrNotFound = errors.New("store: key not found")

// Store is the persistence fabric interface. The production implementation
// is Redis; an in-memory implementation backs tests and single-process
// development.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes a value with an expiration. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes the value only if the key does not exist. It reports
	// whether the write happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Append extends the value at key and returns the new length. The key
	// is created when absent.
	Append(ctx context.Context, key string, value []byte) (int64, error)

	// Len returns the value length at key, zero when absent.
	Len(ctx context.Context, key string) (int64, error)

	// GetDel atomically reads and removes the value at key, so two callers
	// never observe the same bytes. Returns ErrNotFound when absent.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Expire re-arms the expiration on a key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// HIncrBy increments an integer field in a hash record.
	HIncrBy(ctx context.Context, key, field string, delta int64) error

	// HSet writes a string field in a hash record.
	HSet(ctx context.Context, key, field, value string) error

	// HGetAll returns all fields of a hash record, empty when absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Push appends a value to the named queue and registers the queue for
	// discovery.
	Push(ctx context.Context, queue string, value []byte) error

	// Pop blocks up to wait for a value from any of the named queues. It
	// returns the source queue and the value, or ("", nil, nil) when the
	// wait elapses with nothing available.
	Pop(ctx context.Context, queues []string, wait time.Duration) (string, []byte, error)

	// Queues returns the registered queue names with the given prefix.
	Queues(ctx context.Context, prefix string) ([]string, error)

	// Publish sends a value to all current subscribers of a channel.
	// Messages published with no subscriber attached are lost.
	Publish(ctx context.Context, channel string, value []byte) error

	// Subscribe attaches to a channel. The returned subscription must be
	// closed when the caller is done.
	Subscribe(ctx context.Context, channel string) (*Subscription, error)

	// AcquireLock takes a token-holding lock with a TTL. It reports whether
	// the lock was acquired.
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// ReleaseLock releases a lock only when it still holds the given token.
	ReleaseLock(ctx context.Context, key, token string) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

// Subscription is a live attachment to a pub/sub channel. C delivers
// published payloads until Close is called or the subscribing context ends.
type Subscription struct {
	C     <-chan []byte
	close func()
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.close != nil {
		s.close()
		s.close = nil
	}
}
