package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Interpreter is the driving port of the flow interpreter.
// Implementations keep no per-session state; callers own serialization and caching.
type Interpreter interface {
	// StartSession creates a session on an active flow and runs it until it suspends or terminates.
	StartSession(ctx context.Context, flowID, userID string, metadata map[string]any) (*domain.Session, error)

	// ProcessUserInput submits input to a suspended session, advancing it in place.
	ProcessUserInput(ctx context.Context, session *domain.Session, raw string) (*domain.Session, error)

	// EndSession terminates an active session with the given status.
	EndSession(ctx context.Context, session *domain.Session, status domain.SessionStatus) error
}
