package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Remote is a shared cache tier behind the in-memory store. Values cross it as
// encoded bytes. Get returns ErrCacheMiss for absent keys, otherwise the data
// and its remaining TTL (zero when unknown).
type Remote interface {
	Get(ctx context.Context, ns Namespace, key string) ([]byte, time.Duration, error)
	Set(ctx context.Context, ns Namespace, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, ns Namespace, keys ...string) error
	DeleteMatching(ctx context.Context, ns Namespace, match func(key string) bool) (int, error)
	Clear(ctx context.Context, ns Namespace) error
}

// DefaultRedisPrefix prefixes every key written by RedisTier
const DefaultRedisPrefix = "coursemetrics"

// RedisTier stores cache entries in Redis under {prefix}:{namespace}:{key}
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier creates a Redis-backed remote tier
func NewRedisTier(client *redis.Client, prefix string) *RedisTier {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisTier{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisTier) redisKey(ns Namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, ns, key)
}

func (r *RedisTier) namespacePrefix(ns Namespace) string {
	return fmt.Sprintf("%s:%s:", r.prefix, ns)
}

// Get retrieves an encoded entry and its remaining TTL
func (r *RedisTier) Get(ctx context.Context, ns Namespace, key string) ([]byte, time.Duration, error) {
	redisKey := r.redisKey(ns, key)

	pipe := r.client.Pipeline()
	get := pipe.Get(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, 0, fmt.Errorf("redis get failed: %w", err)
	}

	data, err := get.Bytes()
	if err == redis.Nil {
		return nil, 0, ErrCacheMiss
	} else if err != nil {
		return nil, 0, fmt.Errorf("redis get failed: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		ttl = 0
	}
	return data, ttl, nil
}

// Set stores an encoded entry with the given TTL
func (r *RedisTier) Set(ctx context.Context, ns Namespace, key string, data []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.redisKey(ns, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes entries. Missing keys are ignored.
func (r *RedisTier) Delete(ctx context.Context, ns Namespace, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = r.redisKey(ns, key)
	}
	if err := r.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// DeleteMatching scans the namespace and removes every key accepted by match
func (r *RedisTier) DeleteMatching(ctx context.Context, ns Namespace, match func(key string) bool) (int, error) {
	prefix := r.namespacePrefix(ns)
	removed := 0

	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		if match != nil && !match(strings.TrimPrefix(redisKey, prefix)) {
			continue
		}
		if err := r.client.Del(ctx, redisKey).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete key %s: %w", redisKey, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan failed for namespace %s: %w", ns, err)
	}
	return removed, nil
}

// Clear removes every entry of the namespace
func (r *RedisTier) Clear(ctx context.Context, ns Namespace) error {
	_, err := r.DeleteMatching(ctx, ns, nil)
	return err
}

// Ping checks Redis connectivity
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for health checks
func (r *RedisTier) Client() *redis.Client {
	return r.client
}
