package autoscaler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLockAcquireRelease(t *testing.T) {
	client := newLockClient(t)
	lock := NewRedisDistributedLock(client, "test-lock")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}

func TestLockMutualExclusion(t *testing.T) {
	client := newLockClient(t)
	first := NewRedisDistributedLock(client, "test-lock-multi")
	second := NewRedisDistributedLock(client, "test-lock-multi")
	ctx := context.Background()

	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "held lock must not be granted twice")

	require.NoError(t, first.Unlock(ctx))

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "released lock becomes available")
	require.NoError(t, second.Unlock(ctx))
}

func TestLockExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	first := NewRedisDistributedLock(client, "test-lock-expire")
	second := NewRedisDistributedLock(client, "test-lock-expire")
	ctx := context.Background()

	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(lockTTL + time.Second)

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "expired lease is up for grabs")
	require.NoError(t, second.Unlock(ctx))
}

func TestLockNilClientDegrades(t *testing.T) {
	lock := NewRedisDistributedLock(nil, "test-lock-nil")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "nil client runs in single-instance mode")
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}

func TestLockReacquireCycle(t *testing.T) {
	client := newLockClient(t)
	lock := NewRedisDistributedLock(client, "test-lock-cycle")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		acquired, err := lock.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, acquired, "cycle %d", i)
		require.NoError(t, lock.Unlock(ctx))
	}
}

func TestLockExactlyOneWinner(t *testing.T) {
	client := newLockClient(t)
	first := NewRedisDistributedLock(client, "test-lock-race")
	second := NewRedisDistributedLock(client, "test-lock-race")
	ctx := context.Background()

	a1, err1 := first.TryLock(ctx)
	a2, err2 := second.TryLock(ctx)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.NotEqual(t, a1, a2, "exactly one instance wins")

	if a1 {
		first.Unlock(ctx)
	}
	if a2 {
		second.Unlock(ctx)
	}
}
