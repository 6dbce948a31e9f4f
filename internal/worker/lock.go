package worker

import (
	"context"
	_ "embed"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed lua/release.lua
var releaseScript string

// Locker holds the per-dedup-key uniqueness lock. Acquire is SET NX with a
// TTL; Release only deletes a lock still owned by token.
type Locker interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) (bool, error)
}

type RedisLocker struct {
	rdb     redis.UniversalClient
	prefix  string
	release *redis.Script
}

func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "renderhub:unique:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, release: redis.NewScript(releaseScript)}
}

func (l *RedisLocker) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, l.prefix+key, token, ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := l.release.Run(ctx, l.rdb, []string{l.prefix + key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MemoryLocker is a single-process Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]memoryLock
}

type memoryLock struct {
	token   string
	expires time.Time
}

func NewMemoryLocker(now func() time.Time) *MemoryLocker {
	if now == nil {
		now = time.Now
	}
	return &MemoryLocker{now: now, locks: make(map[string]memoryLock)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if cur, ok := l.locks[key]; ok && now.Before(cur.expires) {
		return false, nil
	}
	l.locks[key] = memoryLock{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.locks[key]
	if !ok || cur.token != token || !l.now().Before(cur.expires) {
		return false, nil
	}
	delete(l.locks, key)
	return true, nil
}

// prune drops expired locks. Callers hold l.mu.
func (l *MemoryLocker) prune(now time.Time) {
	for k, cur := range l.locks {
		if !now.Before(cur.expires) {
			delete(l.locks, k)
		}
	}
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[key]
	return ok && l.now().Before(cur.expires)
}
