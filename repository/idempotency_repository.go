package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers keys for a bounded time.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Get returns "" when the key is absent.
func (r *RedisIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *RedisIdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// NoopIdempotencyStore is used when Redis is not configured. Nothing is remembered.
type NoopIdempotencyStore struct{}

func (NoopIdempotencyStore) Get(ctx context.Context, key string) (string, error) { return "", nil }

func (NoopIdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}
