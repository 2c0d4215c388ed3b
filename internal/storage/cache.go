package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/addrtx/scanner/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// KeyKind identifies which domain value a cache key addresses.
type KeyKind string

const (
	KeyKindTransactions KeyKind = "txs"
	KeyKindTxCount      KeyKind = "txcount"
	KeyKindBalance      KeyKind = "balance"
	KeyKindAddressInfo  KeyKind = "addrinfo"
)

// Cache is the KV tier of the cache hierarchy. Every read is best-effort:
// a Redis outage downgrades to a cache miss rather than surfacing an
// error, per the cache-error-never-surfaced invariant.
type Cache struct {
	redis *RedisCache
}

// NewCache wraps redis as the KV cache tier.
func NewCache(redis *RedisCache) *Cache {
	return &Cache{redis: redis}
}

// Key builds a cache key of the form "<kind>:<param1>:<param2>...".
func Key(kind KeyKind, params ...string) string {
	key := string(kind)
	for _, p := range params {
		key += ":" + p
	}
	return key
}

// Get deserializes the cached value at key into dest. It returns false
// both on a genuine miss and on any Redis or decoding failure; the error
// is nil on a genuine miss and non-nil on a failure. Get records the
// outcome (hit, miss or error) in CacheRequestsTotal itself, and callers
// treat a failure as a miss, never aborting the request.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheRequestsTotal.WithLabelValues(string(keyKindOf(key)), "miss").Inc()
			return false, nil
		}
		metrics.CacheRequestsTotal.WithLabelValues(string(keyKindOf(key)), "error").Inc()
		return false, fmt.Errorf("cache get %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		metrics.CacheRequestsTotal.WithLabelValues(string(keyKindOf(key)), "error").Inc()
		return false, fmt.Errorf("cache unmarshal %q: %w", key, err)
	}

	metrics.CacheRequestsTotal.WithLabelValues(string(keyKindOf(key)), "hit").Inc()
	return true, nil
}

// Set serializes value as JSON and stores it at key with the given TTL.
// Failures are returned but are always best-effort from the caller's
// perspective: a write-through miss must never fail the operation that
// triggered it.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %q: %w", key, err)
	}
	return c.redis.Set(ctx, key, data, ttl)
}

// Invalidate removes one or more keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

func keyKindOf(key string) KeyKind {
	for i, c := range key {
		if c == ':' {
			return KeyKind(key[:i])
		}
	}
	return KeyKind(key)
}
