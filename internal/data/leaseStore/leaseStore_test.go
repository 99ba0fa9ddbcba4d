package leaseStore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisLease(t *testing.T) (*RedisLease, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLeaseWithClient(client), mr
}

func TestRedisLeaseExcludesSecondHolder(t *testing.T) {
	lease, _ := newMiniredisLease(t)
	ctx := context.Background()

	token, ok, err := lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire while held must fail")

	// A different record is independent.
	_, ok, err = lease.Acquire(ctx, "rec-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLeaseReleaseThenReacquire(t *testing.T) {
	lease, _ := newMiniredisLease(t)
	ctx := context.Background()

	token, ok, err := lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lease.Release(ctx, "rec-1", token))

	_, ok, err = lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLeaseReleaseIgnoresStaleToken(t *testing.T) {
	lease, _ := newMiniredisLease(t)
	ctx := context.Background()

	_, ok, err := lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Releasing with a token we do not hold must not evict the holder.
	require.NoError(t, lease.Release(ctx, "rec-1", "stale-token"))

	_, ok, err = lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLeaseExpires(t *testing.T) {
	lease, mr := newMiniredisLease(t)
	ctx := context.Background()

	_, ok, err := lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease must be reacquirable")
}

func TestMemoryLease(t *testing.T) {
	lease := NewMemoryLease()
	ctx := context.Background()

	token, ok, err := lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lease.Release(ctx, "rec-1", "wrong"))
	_, ok, err = lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release with wrong token must keep the lease")

	require.NoError(t, lease.Release(ctx, "rec-1", token))
	_, ok, err = lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLeaseExpiry(t *testing.T) {
	lease := NewMemoryLease()
	now := time.Now()
	lease.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, ok, err = lease.Acquire(ctx, "rec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
