// Package cache stores embedding responses in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockai-router/internal/models"
)

const keyPrefix = "stockai:embedding:"

// RedisCache wraps a Redis client for storing and retrieving embedding responses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis-backed embedding cache.
func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Key derives the cache key for an embedding request. Inputs are hashed in
// order, so the same texts in a different order get a different key.
func Key(provider, model string, inputs []string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(model))
	for _, in := range inputs {
		h.Write([]byte{0})
		h.Write([]byte(in))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response by key.
// Returns the response and true if found, or nil and false if not.
func (r *RedisCache) Get(ctx context.Context, key string) (*models.EmbeddingResponse, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis_cache: get: %w", err)
	}

	var resp models.EmbeddingResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, false, fmt.Errorf("redis_cache: unmarshal: %w", err)
	}
	return &resp, true, nil
}

// Set stores a response in the cache with the configured TTL.
func (r *RedisCache) Set(ctx context.Context, key string, resp *models.EmbeddingResponse) error {
	if resp == nil {
		return errors.New("redis_cache: nil response")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("redis_cache: marshal: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis_cache: set: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
