// Package cache provides the memoization layer for expensive dashboard
// aggregations. Keys are derived deterministically from the metric name,
// the filter shape, and the bucket type; values expire after a fixed TTL
// with no explicit invalidation on writes. Staleness up to the TTL is an
// accepted tradeoff.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// DefaultTTL is the cache lifetime for dashboard aggregations.
const DefaultTTL = 30 * time.Minute

// Cache stores computed aggregation results. Implementations must be safe
// for concurrent use; values are replaced wholesale, never updated in place.
type Cache interface {
	// Get decodes the cached value for key into dest. The bool reports
	// whether the key was present and unexpired.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key for ttl. A non-positive ttl falls back to
	// DefaultTTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Key derives the cache key for a metric: metric name, JSON form of the
// filter, and the bucket type, colon-joined. The filter must be a struct so
// the JSON field order is stable.
func Key(metric string, filter any, bucketType string) string {
	b, err := json.Marshal(filter)
	if err != nil {
		// Filters are plain structs; marshal failure means a programming
		// error. Fall back to an uncacheable-looking but valid key.
		return metric + "::" + bucketType
	}
	return metric + ":" + string(b) + ":" + bucketType
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process Cache backed by a map. Values are stored encoded
// so Get decodes into the caller's type exactly like the Redis backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	if err := cbor.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := cbor.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[key] = memoryEntry{data: data, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Cleanup removes expired entries. Call periodically in long-lived
// processes to bound memory.
func (m *Memory) Cleanup() {
	now := time.Now()
	m.mu.Lock()
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
