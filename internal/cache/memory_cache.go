package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// memoryEntry holds a value and its optional expiry.
type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache implements Cache with an in-process map. State is lost on
// restart and is not shared across instances; the factory refuses to select
// this backend in production configurations.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	hits    int64
	misses  int64

	stopJanitor chan struct{}
	janitorDone chan struct{}
}

// NewMemoryCache creates an in-process cache. A background janitor sweeps
// expired entries; callers must Close to stop it.
func NewMemoryCache() *MemoryCache {
	m := &MemoryCache{
		entries:     make(map[string]memoryEntry),
		stopJanitor: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go m.janitor(time.Minute)
	return m
}

// janitor periodically removes expired entries to bound memory growth.
// Expiry is also enforced lazily on every read.
func (m *MemoryCache) janitor(interval time.Duration) {
	defer close(m.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopJanitor:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for key, entry := range m.entries {
				if entry.expired(now) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// get returns the live entry for key, deleting it if expired.
func (m *MemoryCache) get(key string) (memoryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		m.misses++
		return memoryEntry{}, false
	}
	if entry.expired(time.Now()) {
		delete(m.entries, key)
		m.misses++
		return memoryEntry{}, false
	}
	m.hits++
	return entry, true
}

// Get returns the value for key, or ErrCacheMiss.
func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	entry, ok := m.get(key)
	if !ok {
		return "", ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value without expiry.
func (m *MemoryCache) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value}
	return nil
}

// SetEx stores a value with the given TTL.
func (m *MemoryCache) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Del removes a key.
func (m *MemoryCache) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Incr atomically increments the counter at key, creating it at 1.
// An existing TTL is preserved, matching redis INCR semantics.
func (m *MemoryCache) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if ok && entry.expired(time.Now()) {
		entry = memoryEntry{}
		ok = false
	}

	var count int64
	if ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, ErrNotAnInteger
		}
		count = parsed
	}
	count++

	entry.value = strconv.FormatInt(count, 10)
	if !ok {
		entry.expiresAt = time.Time{}
	}
	m.entries[key] = entry
	return count, nil
}

// Expire sets a TTL on an existing key.
func (m *MemoryCache) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || entry.expired(time.Now()) {
		return false, nil
	}
	entry.expiresAt = time.Now().Add(ttl)
	m.entries[key] = entry
	return true, nil
}

// TTL returns the remaining TTL (-1 no expiry, -2 missing key).
func (m *MemoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok || entry.expired(time.Now()) {
		return -2 * time.Second, nil
	}
	if entry.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return time.Until(entry.expiresAt), nil
}

// Exists reports whether key is present and unexpired.
func (m *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	return ok && !entry.expired(time.Now()), nil
}

// FlushDB removes all keys.
func (m *MemoryCache) FlushDB(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

// HealthCheck always succeeds for the in-process backend.
func (m *MemoryCache) HealthCheck(_ context.Context) error {
	return nil
}

// Stats returns key count and hit/miss counters.
func (m *MemoryCache) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Backend: "memory",
		Keys:    int64(len(m.entries)),
		Hits:    m.hits,
		Misses:  m.misses,
	}, nil
}

// Close stops the janitor goroutine.
func (m *MemoryCache) Close() error {
	close(m.stopJanitor)
	<-m.janitorDone
	return nil
}
