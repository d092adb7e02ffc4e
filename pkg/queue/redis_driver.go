package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list jobs are pushed to.
const DefaultRedisKey = "filebot:queue:jobs"

// RedisDriver keeps jobs in a Redis list (LPUSH/BRPOP), so queued
// broadcasts survive a restart.
type RedisDriver struct {
	rdb     *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisDriver shares the client used by pkg/cache. The client is
// owned by the caller and is not closed by Close.
func NewRedisDriver(rdb *redis.Client, key string) *RedisDriver {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisDriver{rdb: rdb, key: key, timeout: time.Second}
}

func (d *RedisDriver) Push(ctx context.Context, payload []byte) error {
	if err := d.rdb.LPush(ctx, d.key, payload).Err(); err != nil {
		return fmt.Errorf("queue/redis: push: %w", err)
	}
	return nil
}

// Pop blocks for at most one poll interval so workers notice Stop.
func (d *RedisDriver) Pop(ctx context.Context) ([]byte, error) {
	result, err := d.rdb.BRPop(ctx, d.timeout, d.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue/redis: pop: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

// Len reports how many jobs are waiting.
func (d *RedisDriver) Len(ctx context.Context) (int64, error) {
	return d.rdb.LLen(ctx, d.key).Result()
}

func (d *RedisDriver) Close() error { return nil }
