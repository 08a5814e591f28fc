// Package profile provides the durable user-profile and prompt-content
// store boundary.
package profile

import (
	"context"
	"errors"

	"github.com/amigo-labs/amigo-server/internal/domain"
)

// ErrNotFound is returned when a user has no stored profile. Callers
// normally fall back to domain.DefaultProfile rather than treating this as
// fatal.
var ErrNotFound = errors.New("profile: not found")

// Store is the profile/content store boundary.
type Store interface {
	// Get returns the stored profile for a user, or ErrNotFound.
	Get(ctx context.Context, userID string) (*domain.Profile, error)

	// Merge applies a partial update to the user's profile, creating the
	// record when absent. Vocabulary entries merge by word, last write
	// wins.
	Merge(ctx context.Context, userID string, update domain.ProfileUpdate) error

	// ListPrompts returns the prompt template table keyed by prompt id.
	ListPrompts(ctx context.Context) (map[string]string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
