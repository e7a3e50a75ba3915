package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/tenantkit/secrets/internal/errors"
)

// RedisCache implements Cache over a redis server. This is the distributed
// backend required for multi-instance deployments: TTLs and counters are
// shared across all processes pointing at the same server.
type RedisCache struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisCache creates a redis-backed cache and verifies connectivity.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, "failed to connect to redis")
	}

	return &RedisCache{client: client}, nil
}

// Get returns the value for key, or ErrCacheMiss.
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.misses.Add(1)
			return "", ErrCacheMiss
		}
		return "", apperrors.Wrap(err, "redis get failed")
	}
	r.hits.Add(1)
	return value, nil
}

// Set stores a value without expiry.
func (r *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return apperrors.Wrap(err, "redis set failed")
	}
	return nil
}

// SetEx stores a value with the given TTL.
func (r *RedisCache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperrors.Wrap(err, "redis setex failed")
	}
	return nil
}

// Del removes a key.
func (r *RedisCache) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return apperrors.Wrap(err, "redis del failed")
	}
	return nil
}

// Incr atomically increments the counter at key.
func (r *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, apperrors.Wrap(err, "redis incr failed")
	}
	return count, nil
}

// Expire sets a TTL on an existing key.
func (r *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, apperrors.Wrap(err, "redis expire failed")
	}
	return ok, nil
}

// TTL returns the remaining TTL for key (redis semantics for -1/-2).
func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, apperrors.Wrap(err, "redis ttl failed")
	}
	return ttl, nil
}

// Exists reports whether key is present.
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, apperrors.Wrap(err, "redis exists failed")
	}
	return n > 0, nil
}

// FlushDB removes all keys in the selected logical database.
func (r *RedisCache) FlushDB(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return apperrors.Wrap(err, "redis flushdb failed")
	}
	return nil
}

// HealthCheck verifies the redis server responds to PING.
func (r *RedisCache) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return apperrors.Wrap(err, "redis health check failed")
	}
	return nil
}

// Stats returns key count and hit/miss counters.
func (r *RedisCache) Stats(ctx context.Context) (Stats, error) {
	keys, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, apperrors.Wrap(err, "redis dbsize failed")
	}
	return Stats{
		Backend: "redis",
		Keys:    keys,
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
	}, nil
}

// Close releases the underlying connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
