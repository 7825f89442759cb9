package cache

import (
	"context"
	"time"
)

// Cache is a TTL key/value cache used to memoize catalog entity lookups.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value. The second result is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value with the given TTL, replacing any existing entry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns a snapshot of cache statistics.
	Metrics() *Metrics
}

// Metrics is a point-in-time snapshot of cache statistics.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64
	SizeBytes   int64
}

// HitRate returns the fraction of lookups served from cache, 0.0 to 1.0.
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
