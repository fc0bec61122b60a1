package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLock_NoLeak(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i%5)
			_ = m.WithLock(ctx, id, func(context.Context) error { return nil })
		}(i)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.locks, "lock entries must be released once unused")
}

func TestWithLock_PropagatesError(t *testing.T) {
	m := NewManager(nil, nil)
	boom := errors.New("boom")

	err := m.WithLock(context.Background(), "s", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Empty(t, m.locks)
}

func TestWithLock_SerializesSameSession(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock(ctx, "shared", func(context.Context) error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}
