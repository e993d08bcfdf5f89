package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const transientPrefix = "alttext:"

// TransientRepoImpl provides a concrete implementation for the
// TransientRepository interface using Redis.
type TransientRepoImpl struct {
	client *redis.Client
}

// NewTransientRepo creates a new instance of TransientRepoImpl.
func NewTransientRepo(client *redis.Client) *TransientRepoImpl {
	return &TransientRepoImpl{client: client}
}

func (r *TransientRepoImpl) generateKey(key string) string {
	return transientPrefix + key
}

// Get returns the value of a key and whether it exists.
func (r *TransientRepoImpl) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.generateKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores a value with an expiry; a zero ttl keeps the key forever.
func (r *TransientRepoImpl) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.generateKey(key), value, ttl).Err()
}

// SetNX is atomic: only one of several concurrent callers wins.
func (r *TransientRepoImpl) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.generateKey(key), value, ttl).Result()
}

// Incr increments a counter atomically and refreshes its TTL in one round trip.
func (r *TransientRepoImpl) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := r.generateKey(key)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	if ttl > 0 {
		pipe.Expire(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Delete removes the key.
func (r *TransientRepoImpl) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.generateKey(key)).Err()
}

func (r *TransientRepoImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
