package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func TestRedisLocker(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := NewRedisLocker(rdb, "")
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "item:42:item_icon", "tok-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "item:42:item_icon", "tok-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	released, err := l.Release(ctx, "item:42:item_icon", "tok-2")
	require.NoError(t, err)
	assert.False(t, released, "non-owner must not release")
	assert.True(t, mr.Exists("renderhub:unique:item:42:item_icon"))

	released, err = l.Release(ctx, "item:42:item_icon", "tok-1")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("renderhub:unique:item:42:item_icon"))
}

func TestRedisLockerExpires(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := NewRedisLocker(rdb, "test:")
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "user:1:avatar", "a", 900*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(901 * time.Second)

	ok, err = l.Acquire(ctx, "user:1:avatar", "b", 900*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLocker(t *testing.T) {
	clock := newTestClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := NewMemoryLocker(clock.Now)
	ctx := context.Background()

	ok, _ := l.Acquire(ctx, "k", "a", time.Minute)
	assert.True(t, ok)
	ok, _ = l.Acquire(ctx, "k", "b", time.Minute)
	assert.False(t, ok)
	assert.True(t, l.Held("k"))

	released, _ := l.Release(ctx, "k", "b")
	assert.False(t, released)

	clock.Advance(time.Minute)
	assert.False(t, l.Held("k"))
	ok, _ = l.Acquire(ctx, "k", "b", time.Minute)
	assert.True(t, ok)

	released, _ = l.Release(ctx, "k", "b")
	assert.True(t, released)
	assert.False(t, l.Held("k"))
}

func TestMemoryLockerPrunesExpiredKeys(t *testing.T) {
	clock := newTestClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := NewMemoryLocker(clock.Now)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, _ := l.Acquire(ctx, fmt.Sprintf("item:%d:item_icon", i), "tok", time.Minute)
		require.True(t, ok)
	}
	clock.Advance(time.Minute)

	ok, _ := l.Acquire(ctx, "user:1:avatar", "tok", time.Minute)
	require.True(t, ok)
	assert.Len(t, l.locks, 1)
}
