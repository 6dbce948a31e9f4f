package worker

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed lua/throttle.lua
var throttleScript string

// Throttle is the per-dedup-key exception throttle: reaching MaxFailures
// failures inside Window suspends the key for Backoff.
type Throttle interface {
	// SuspendedUntil returns the end of the current suspension, or the zero
	// time when the key is not suspended.
	SuspendedUntil(ctx context.Context, key string, now time.Time) (time.Time, error)
	// RecordFailure counts one failure at now and returns the suspension end
	// if this failure triggered one.
	RecordFailure(ctx context.Context, key string, now time.Time) (time.Time, error)
}

type ThrottleConfig struct {
	MaxFailures int
	Window      time.Duration
	Backoff     time.Duration
}

type RedisThrottle struct {
	rdb    redis.UniversalClient
	prefix string
	cfg    ThrottleConfig
	script *redis.Script
}

func NewRedisThrottle(rdb redis.UniversalClient, prefix string, cfg ThrottleConfig) *RedisThrottle {
	if prefix == "" {
		prefix = "renderhub:throttle:"
	}
	return &RedisThrottle{rdb: rdb, prefix: prefix, cfg: cfg, script: redis.NewScript(throttleScript)}
}

func (t *RedisThrottle) failuresKey(key string) string  { return t.prefix + key + ":failures" }
func (t *RedisThrottle) suspensionKey(key string) string { return t.prefix + key + ":suspended" }

func (t *RedisThrottle) SuspendedUntil(ctx context.Context, key string, now time.Time) (time.Time, error) {
	raw, err := t.rdb.Get(ctx, t.suspensionKey(key)).Result()
	if stderrors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("throttle: bad suspension value %q: %w", raw, err)
	}
	until := time.UnixMilli(ms)
	if !now.Before(until) {
		return time.Time{}, nil
	}
	return until, nil
}

func (t *RedisThrottle) RecordFailure(ctx context.Context, key string, now time.Time) (time.Time, error) {
	until := now.Add(t.cfg.Backoff)
	res, err := t.script.Run(ctx, t.rdb,
		[]string{t.failuresKey(key), t.suspensionKey(key)},
		now.UnixMilli(),
		t.cfg.Window.Milliseconds(),
		t.cfg.MaxFailures,
		t.cfg.Backoff.Milliseconds(),
		uuid.NewString(),
		until.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return time.Time{}, err
	}
	if len(res) != 2 {
		return time.Time{}, fmt.Errorf("throttle: unexpected script result %v", res)
	}
	if res[1] == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(until.UnixMilli()), nil
}

// MemoryThrottle is a single-process Throttle.
type MemoryThrottle struct {
	mu        sync.Mutex
	cfg       ThrottleConfig
	failures  map[string][]time.Time
	suspended map[string]time.Time
}

func NewMemoryThrottle(cfg ThrottleConfig) *MemoryThrottle {
	return &MemoryThrottle{
		cfg:       cfg,
		failures:  make(map[string][]time.Time),
		suspended: make(map[string]time.Time),
	}
}

func (t *MemoryThrottle) SuspendedUntil(_ context.Context, key string, now time.Time) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	until, ok := t.suspended[key]
	if !ok || !now.Before(until) {
		delete(t.suspended, key)
		return time.Time{}, nil
	}
	return until, nil
}

func (t *MemoryThrottle) RecordFailure(_ context.Context, key string, now time.Time) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune(now)

	cutoff := now.Add(-t.cfg.Window)
	kept := t.failures[key][:0]
	for _, f := range t.failures[key] {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	kept = append(kept, now)
	t.failures[key] = kept

	if len(kept) >= t.cfg.MaxFailures {
		until := now.Add(t.cfg.Backoff)
		t.suspended[key] = until
		return until, nil
	}
	return time.Time{}, nil
}

// prune drops failure windows with no recent failure and ended suspensions.
// Callers hold t.mu.
func (t *MemoryThrottle) prune(now time.Time) {
	cutoff := now.Add(-t.cfg.Window)
	for k, fs := range t.failures {
		if len(fs) == 0 || !fs[len(fs)-1].After(cutoff) {
			delete(t.failures, k)
		}
	}
	for k, until := range t.suspended {
		if !now.Before(until) {
			delete(t.suspended, k)
		}
	}
}
