// Package cache stores small JSON values in Redis, or in process memory
// when Redis is not configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shashiranjanraj/filebot/pkg/metrics"
)

// Connect creates a Redis client and verifies it with a ping.
// The client is closed again when the ping fails.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return rdb, nil
}

// Cache is safe for concurrent use. A nil RDB selects the memory driver.
type Cache struct {
	rdb    *redis.Client
	prefix string

	mu        sync.Mutex
	mem       map[string]memEntry
	nextSweep time.Time
}

type memEntry struct {
	data    []byte
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// New returns a cache that namespaces every key with prefix.
func New(rdb *redis.Client, prefix string) *Cache {
	return &Cache{rdb: rdb, prefix: prefix, mem: map[string]memEntry{}}
}

func (c *Cache) driver() string {
	if c.rdb != nil {
		return "redis"
	}
	return "memory"
}

func (c *Cache) key(k string) string { return c.prefix + k }

// Get unmarshals the value under key into dest and reports a hit.
// Redis errors count as a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, ok := c.get(ctx, c.key(key))
	if ok && json.Unmarshal(data, dest) == nil {
		metrics.CacheHits.WithLabelValues(c.driver()).Inc()
		return true
	}
	metrics.CacheMisses.WithLabelValues(c.driver()).Inc()
	return false
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, key).Bytes()
		return val, err == nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.mem[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.mem, key)
		return nil, false
	}
	return e.data, true
}

// Set stores value under key for ttl. A zero ttl never expires.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	if c.rdb != nil {
		return c.rdb.Set(ctx, c.key(key), data, ttl).Err()
	}

	c.mu.Lock()
	c.sweepLocked(time.Now())
	c.mem[c.key(key)] = memEntry{data: data, expires: expiry(ttl)}
	c.mu.Unlock()
	return nil
}

// SetNX claims key for ttl and reports whether this call won the claim.
func (c *Cache) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if c.rdb != nil {
		ok, err := c.rdb.SetNX(ctx, c.key(key), 1, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("cache: setnx %s: %w", key, err)
		}
		return ok, nil
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
	if e, ok := c.mem[c.key(key)]; ok && !e.expired(now) {
		return false, nil
	}
	c.mem[c.key(key)] = memEntry{data: []byte("1"), expires: expiry(ttl)}
	return true, nil
}

// Del removes keys. Missing keys are ignored.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}

	if c.rdb != nil {
		return c.rdb.Del(ctx, full...).Err()
	}

	c.mu.Lock()
	for _, k := range full {
		delete(c.mem, k)
	}
	c.mu.Unlock()
	return nil
}

// Ping checks the Redis connection. The memory driver is always healthy.
func (c *Cache) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

const (
	sweepMinEntries = 1024
	sweepInterval   = time.Minute
)

// sweepLocked drops expired entries once the map grows, at most once per
// sweepInterval. c.mu must be held.
func (c *Cache) sweepLocked(now time.Time) {
	if len(c.mem) < sweepMinEntries || now.Before(c.nextSweep) {
		return
	}
	c.nextSweep = now.Add(sweepInterval)
	for k, e := range c.mem {
		if e.expired(now) {
			delete(c.mem, k)
		}
	}
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
