package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// SessionStore defines the interface for persisting session snapshots.
// Implementations expire sessions after a retention window counted from creation,
// regardless of status.
type SessionStore interface {
	// Create persists a new session. Returns domain.ErrSessionExists if the ID is taken.
	Create(ctx context.Context, session *domain.Session) error

	// UpdateBySessionID applies a patch to a persisted session.
	// Returns domain.ErrSessionNotFound if the session does not exist or expired.
	UpdateBySessionID(ctx context.Context, sessionID string, patch domain.SessionPatch) error

	// FindBySessionID retrieves a session.
	// Returns domain.ErrSessionNotFound if the session does not exist or expired.
	FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error

	// Query returns session summaries (no transcript) newest first.
	Query(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error)
}
