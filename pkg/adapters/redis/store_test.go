package redis_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	contract "github.com/aretw0/chatflow/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	clock := contract.NewFakeClock(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))
	contract.RunSessionStoreContract(t, func(t *testing.T) ports.SessionStore {
		_, client := newClient(t)
		return redis.NewFromClient(client, redis.WithClock(clock))
	})
}

func TestRedisStore_Retention(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := contract.NewFakeClock(created)
	store := redis.NewFromClient(client, redis.WithClock(clock), redis.WithRetention(time.Hour))

	require.NoError(t, store.Create(ctx, domain.NewSession("s1", "f1", "start", created)))
	assert.Equal(t, time.Hour, mr.TTL("chatflow:session:s1"))

	// Updates keep the TTL counted from creation.
	mr.FastForward(30 * time.Minute)
	status := domain.SessionCompleted
	require.NoError(t, store.UpdateBySessionID(ctx, "s1", domain.SessionPatch{Status: &status}))
	assert.Equal(t, 30*time.Minute, mr.TTL("chatflow:session:s1"))

	mr.FastForward(31 * time.Minute)
	clock.Advance(61 * time.Minute)

	_, err := store.FindBySessionID(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	page, err := store.Query(ctx, domain.SessionQuery{FlowID: "f1"})
	require.NoError(t, err)
	assert.Empty(t, page.Sessions)
	assert.Equal(t, 0, page.Pagination.Total)
}

func TestRedisStore_Prefix(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	clock := contract.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"), redis.WithClock(clock))

	s := domain.NewSession("my-session", "greeter", "start", clock.Now())
	s.UserID = "ada"
	require.NoError(t, store.Create(ctx, s))

	assert.True(t, mr.Exists("custom:app:session:my-session"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:sessions"))
	assert.True(t, mr.Exists("custom:app:flow:greeter:sessions"))
	assert.True(t, mr.Exists("custom:app:user:ada:sessions"))

	require.NoError(t, store.Delete(ctx, "my-session"))
	assert.False(t, mr.Exists("custom:app:flow:greeter:sessions"), "Index entries are removed with the session")
}

func TestRedisStore_QueryByFlowAndUser(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := redis.NewFromClient(client, redis.WithClock(contract.NewFakeClock(base.Add(time.Hour))))

	for i, user := range []string{"a", "b", "a", "a"} {
		s := domain.NewSession(fmt.Sprintf("s%d", i), "f1", "start", base.Add(time.Duration(i)*time.Minute))
		s.UserID = user
		require.NoError(t, store.Create(ctx, s))
	}

	page, err := store.Query(ctx, domain.SessionQuery{FlowID: "f1", UserID: "a", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Pagination.Total)
	require.Len(t, page.Sessions, 2)
	assert.Equal(t, "s3", page.Sessions[0].SessionID)
	assert.Equal(t, "s2", page.Sessions[1].SessionID)

	all, err := store.Query(ctx, domain.SessionQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, all.Pagination.Total)
}

func TestRedisStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := redis.NewFromClient(client, redis.WithClock(contract.NewFakeClock(now)))
	require.NoError(t, store.Create(ctx, domain.NewSession("race", "f1", "start", now)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node := fmt.Sprintf("n%d", i)
			assert.NoError(t, store.UpdateBySessionID(ctx, "race", domain.SessionPatch{CurrentNodeID: &node}))
		}(i)
	}
	wg.Wait()

	got, err := store.FindBySessionID(ctx, "race")
	require.NoError(t, err)
	assert.Regexp(t, `^n\d$`, got.CurrentNodeID)
}
