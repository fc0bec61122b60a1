package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It lets the session manager serialize input for one session across replicas
// that share a session store.
type DistributedLocker interface {
	// Lock attempts to acquire a lock for the given key (a session ID).
	// It blocks until the lock is acquired or the context is canceled.
	// The lock expires after ttl if never released.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
