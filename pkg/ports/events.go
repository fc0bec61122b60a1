package ports

import (
	"context"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
)

// EventSink receives session events synchronously, in production order.
// Implementations must not block for long; slow consumers should buffer.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event domain.Event)

func (f EventSinkFunc) Emit(ctx context.Context, event domain.Event) { f(ctx, event) }

// Clock abstracts time for the interpreter and stores.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
