package queue

import (
	"context"
	_ "embed"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed lua/promote.lua
var promoteScript string

// RedisQueue is a ready list consumed with BRPOP plus a sorted set of
// delayed entries scored by due time in unix milliseconds.
type RedisQueue struct {
	rdb       redis.UniversalClient
	queueName string
	promote   *redis.Script
}

func NewRedisQueue(rdb redis.UniversalClient, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName, promote: redis.NewScript(promoteScript)}
}

func (q *RedisQueue) delayedKey() string { return q.queueName + ":delayed" }

// Push makes payload available to Pop immediately.
func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	return q.rdb.LPush(ctx, q.queueName, payload).Err()
}

// Schedule parks payload until at; Promote releases it.
func (q *RedisQueue) Schedule(ctx context.Context, payload []byte, at time.Time) error {
	return q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: payload,
	}).Err()
}

// Pop blocks up to timeout for one entry. It returns nil, nil on timeout.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Promote moves at most limit delayed entries due by now to the ready list.
// The move is one script call, so concurrent promoters never hand out the
// same entry twice.
func (q *RedisQueue) Promote(ctx context.Context, now time.Time, limit int) (int, error) {
	n, err := q.promote.Run(ctx, q.rdb, []string{q.delayedKey(), q.queueName}, now.UnixMilli(), limit).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Depth reports ready and delayed sizes for health checks.
func (q *RedisQueue) Depth(ctx context.Context) (ready, delayed int64, err error) {
	if ready, err = q.rdb.LLen(ctx, q.queueName).Result(); err != nil {
		return 0, 0, err
	}
	if delayed, err = q.rdb.ZCard(ctx, q.delayedKey()).Result(); err != nil {
		return 0, 0, err
	}
	return ready, delayed, nil
}
