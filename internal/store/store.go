// Package store provides the per-user document persistence boundary.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cyberlover-ai/cyberlover/internal/domain"
)

// ErrEmailInUse is returned by CreateUser when the email already has an account.
var ErrEmailInUse = errors.New("email already in use")

// DocumentStore defines the interface for the per-user document store.
// GetUser and GetUserByEmail return (nil, nil) when no document exists.
type DocumentStore interface {
	// GetUser retrieves a user document by user ID.
	GetUser(ctx context.Context, userID string) (*domain.UserRecord, error)

	// GetUserByEmail retrieves a user document by account email.
	GetUserByEmail(ctx context.Context, email string) (*domain.UserRecord, error)

	// CreateUser writes a full user document. Used only at account creation;
	// createdAt timestamps are assigned by the store.
	CreateUser(ctx context.Context, user *domain.UserRecord) error

	// UpdateCredits writes the user's credit balance (last-writer-wins).
	UpdateCredits(ctx context.Context, userID string, credits int) error

	// ApplyMetricsDelta applies atomic field-level increments to the user's
	// usage metrics, optionally refreshing lastOnline to the current time.
	ApplyMetricsDelta(ctx context.Context, userID string, delta domain.MetricsDelta) error

	// TouchLastOnline updates only the lastOnline timestamp.
	TouchLastOnline(ctx context.Context, userID string, at time.Time) error

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying connection.
	Close() error
}
