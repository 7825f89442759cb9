// Package memorycache provides an in-process LRU cache with per-entry TTL.
// It backs the catalog client's by-reference lookups; computed ownership
// results are never stored here.
package memorycache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/sakaguchi/ownerstats/pkg/cache"
)

// Sizer estimates the in-memory size of a cached value in bytes. It lets the
// cache account for variable-size entity payloads instead of a flat guess.
type Sizer func(key string, value interface{}) int64

// defaultSizer charges a flat overhead plus the key length.
func defaultSizer(key string, _ interface{}) int64 {
	return int64(100 + len(key))
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes is the eviction threshold for the summed entry sizes.
	// Least recently used entries are evicted once it is exceeded.
	MaxSizeBytes int64

	// DefaultTTL is used when Set is called with a non-positive TTL.
	DefaultTTL time.Duration

	// Sizer overrides the default flat size estimate.
	Sizer Sizer

	// EnableMetrics turns on hit/miss/eviction counting.
	EnableMetrics bool
}

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
	size      int64
}

// Cache is an LRU cache with TTL support. Entries expire lazily on access.
type Cache struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recently used

	maxSize     int64
	defaultTTL  time.Duration
	sizer       Sizer
	currentSize int64

	stats *stats
}

type stats struct {
	hits        uint64
	misses      uint64
	keysAdded   uint64
	keysEvicted uint64
}

// New creates a memory cache from the given configuration.
func New(cfg *Config) (*Cache, error) {
	c := &Cache{
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		maxSize:    cfg.MaxSizeBytes,
		defaultTTL: cfg.DefaultTTL,
		sizer:      cfg.Sizer,
	}
	if c.sizer == nil {
		c.sizer = defaultSizer
	}
	if cfg.EnableMetrics {
		c.stats = &stats{}
	}
	return c, nil
}

// Get retrieves a value, evicting it first if its TTL has passed.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		if c.stats != nil {
			c.stats.misses++
		}
		return nil, false
	}

	ent := elem.Value.(*entry)
	if time.Now().After(ent.expiresAt) {
		c.removeElement(elem)
		if c.stats != nil {
			c.stats.misses++
		}
		return nil, false
	}

	c.evictList.MoveToFront(elem)
	if c.stats != nil {
		c.stats.hits++
	}
	return ent.value, true
}

// Set stores a value. A non-positive ttl falls back to the configured default.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizer(key, value)

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		c.currentSize += size - ent.size
		ent.value = value
		ent.expiresAt = time.Now().Add(ttl)
		ent.size = size
		c.evictList.MoveToFront(elem)
	} else {
		elem := c.evictList.PushFront(&entry{
			key:       key,
			value:     value,
			expiresAt: time.Now().Add(ttl),
			size:      size,
		})
		c.items[key] = elem
		c.currentSize += size
		if c.stats != nil {
			c.stats.keysAdded++
		}
	}

	// Evict least recently used entries until back under the threshold.
	for c.maxSize > 0 && c.currentSize > c.maxSize && c.evictList.Len() > 0 {
		oldest := c.evictList.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		if c.stats != nil {
			c.stats.keysEvicted++
		}
	}

	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0
	return nil
}

// Close is a no-op for the memory cache.
func (c *Cache) Close() error {
	return nil
}

// Metrics returns a snapshot of cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &cache.Metrics{SizeBytes: c.currentSize}
	if c.stats != nil {
		m.Hits = c.stats.hits
		m.Misses = c.stats.misses
		m.KeysAdded = c.stats.keysAdded
		m.KeysEvicted = c.stats.keysEvicted
	}
	return m
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// removeElement removes an element. Caller must hold the lock.
func (c *Cache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}
