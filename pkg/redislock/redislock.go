package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be acquired within the
// caller's wait window.
var ErrNotAcquired = errors.New("redislock: lock not acquired")

// luaReleaseIfMatch deletes the lock key only when its value still matches our
// token, so an expired lock re-acquired by someone else is never deleted.
const luaReleaseIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// acquirePollInterval is how often waiting callers re-attempt SETNX.
const acquirePollInterval = 50 * time.Millisecond

// Lock is a single-use distributed mutex backed by Redis SETNX with a lease.
// The lease bounds how long a crashed holder can block other callers.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire tries to take the lock, polling until wait elapses. The lock
// auto-expires after lease. Returns ErrNotAcquired on timeout.
func Acquire(ctx context.Context, client *redis.Client, key string, wait, lease time.Duration) (*Lock, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := client.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{client: client, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

// TryAcquire attempts the lock exactly once without waiting. Used by
// schedulers that should skip a run when another instance holds the lock.
func TryAcquire(ctx context.Context, client *redis.Client, key string, lease time.Duration) (*Lock, error) {
	token := uuid.NewString()

	ok, err := client.SetNX(ctx, key, token, lease).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &Lock{client: client, key: key, token: token}, nil
}

// Release frees the lock if we still hold it. Safe to call after the lease
// expired: a lock taken over by another caller is left untouched.
func (l *Lock) Release(ctx context.Context) error {
	return l.client.Eval(ctx, luaReleaseIfMatch, []string{l.key}, l.token).Err()
}
