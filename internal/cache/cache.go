// Package cache provides a uniform key/value cache surface over
// interchangeable backends. A distributed backend (redis) is required for
// multi-instance deployments; the in-process backend is an explicit
// non-durable fallback for local development and tests.
package cache

import (
	"context"
	"time"
)

// Cache is the uniform cache surface consumed by the abuse guard and any
// other component needing TTL-backed keys or windowed counters.
type Cache interface {
	// Get returns the value for key. Returns ErrCacheMiss if absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Set stores a value without expiry.
	Set(ctx context.Context, key, value string) error
	// SetEx stores a value with the given TTL.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes a key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error
	// Incr atomically increments the integer value at key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets a TTL on an existing key. Returns false if the key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// TTL returns the remaining TTL. Negative values follow redis semantics:
	// -1 for no expiry, -2 for missing key.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Exists reports whether the key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
	// FlushDB removes all keys. Intended for tests and dev tooling.
	FlushDB(ctx context.Context) error
	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
	// Stats returns backend statistics for observability surfaces.
	Stats(ctx context.Context) (Stats, error)
	// Close releases backend resources.
	Close() error
}

// Stats describes a cache backend for health/observability reporting.
type Stats struct {
	// Backend is the backend name ("redis" or "memory").
	Backend string
	// Keys is the number of stored keys, where cheaply known.
	Keys int64
	// Hits and Misses count Get outcomes since process start.
	Hits   int64
	Misses int64
}
