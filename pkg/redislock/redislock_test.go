package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestAcquireAndRelease(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	lock, err := Acquire(ctx, client, "lock:test", time.Second, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:test"))

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("lock:test"))
}

func TestAcquireContention(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	first, err := Acquire(ctx, client, "lock:test", time.Second, 5*time.Second)
	require.NoError(t, err)

	// the second caller times out while the first holds the lock
	_, err = Acquire(ctx, client, "lock:test", 150*time.Millisecond, 5*time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, first.Release(ctx))

	second, err := Acquire(ctx, client, "lock:test", time.Second, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestTryAcquire(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	lock, err := TryAcquire(ctx, client, "lock:sweep", 5*time.Second)
	require.NoError(t, err)

	_, err = TryAcquire(ctx, client, "lock:sweep", 5*time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, lock.Release(ctx))

	lock2, err := TryAcquire(ctx, client, "lock:sweep", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, lock2.Release(ctx))
}

func TestReleaseAfterTakeover(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	lock, err := Acquire(ctx, client, "lock:test", time.Second, 100*time.Millisecond)
	require.NoError(t, err)

	// lease expires, someone else takes the lock
	mr.FastForward(200 * time.Millisecond)
	takeover, err := TryAcquire(ctx, client, "lock:test", 5*time.Second)
	require.NoError(t, err)

	// the stale holder's release must not delete the new owner's lock
	require.NoError(t, lock.Release(ctx))
	assert.True(t, mr.Exists("lock:test"))

	require.NoError(t, takeover.Release(ctx))
}
