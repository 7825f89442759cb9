package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/sakaguchi/ownerstats/pkg/cache"
)

// Collector aggregates application metrics independently of the Prometheus
// export path, so they stay queryable in-process (health output, tests).
type Collector struct {
	// HTTP metrics, keyed by route template.
	httpRequests sync.Map // map[string]*uint64
	httpErrors   sync.Map // map[string]*uint64
	httpDuration sync.Map // map[string]*durationValue

	// Resolver metrics.
	resolutions     atomic.Uint64
	groupExpansions atomic.Uint64
	ownedFetched    atomic.Uint64

	// Entity cache reference (optional).
	cache cache.Cache
}

// durationValue accumulates total duration with a mutex for atomic float adds.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds entity cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	MemoryBytes int64
	Evictions   uint64
}

// HTTPMetrics holds per-route request metrics.
type HTTPMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache attaches the entity cache so its statistics can be reported.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordRequest records one HTTP request for the given route.
func (c *Collector) RecordRequest(route string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.httpRequests, route), 1)
}

// RecordError records one failed HTTP request for the given route.
func (c *Collector) RecordError(route string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.httpErrors, route), 1)
}

// RecordDuration adds one request's duration for the given route.
func (c *Collector) RecordDuration(route string, durationSeconds float64) {
	val, _ := c.httpDuration.LoadOrStore(route, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordResolution records one completed ownership resolution.
func (c *Collector) RecordResolution() {
	c.resolutions.Add(1)
}

// RecordGroupExpansions adds the number of group nodes expanded during one
// resolution.
func (c *Collector) RecordGroupExpansions(n int) {
	if n > 0 {
		c.groupExpansions.Add(uint64(n))
	}
}

// RecordOwnedFetched adds the number of owned entities returned by a search.
func (c *Collector) RecordOwnedFetched(n int) {
	if n > 0 {
		c.ownedFetched.Add(uint64(n))
	}
}

// Resolutions returns the total number of completed resolutions.
func (c *Collector) Resolutions() uint64 {
	return c.resolutions.Load()
}

// GroupExpansions returns the total number of expanded group nodes.
func (c *Collector) GroupExpansions() uint64 {
	return c.groupExpansions.Load()
}

// OwnedFetched returns the total number of owned entities fetched.
func (c *Collector) OwnedFetched() uint64 {
	return c.ownedFetched.Load()
}

// GetCacheMetrics returns current entity cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}
	m := c.cache.Metrics()
	if m == nil {
		return &CacheMetrics{}
	}
	return &CacheMetrics{
		Hits:        m.Hits,
		Misses:      m.Misses,
		HitRate:     m.HitRate(),
		MemoryBytes: m.SizeBytes,
		Evictions:   m.KeysEvicted,
	}
}

// GetHTTPMetrics returns a snapshot of per-route request metrics.
func (c *Collector) GetHTTPMetrics() *HTTPMetrics {
	out := &HTTPMetrics{
		RequestCounts:        make(map[string]uint64),
		ErrorCounts:          make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}
	c.httpRequests.Range(func(k, v interface{}) bool {
		out.RequestCounts[k.(string)] = atomic.LoadUint64(v.(*uint64))
		return true
	})
	c.httpErrors.Range(func(k, v interface{}) bool {
		out.ErrorCounts[k.(string)] = atomic.LoadUint64(v.(*uint64))
		return true
	})
	c.httpDuration.Range(func(k, v interface{}) bool {
		dv := v.(*durationValue)
		dv.mu.Lock()
		out.TotalDurationSeconds[k.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})
	return out
}

func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
