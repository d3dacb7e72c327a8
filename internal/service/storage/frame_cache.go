package storage

import (
	"sort"
	"sync"

	"snapvision/internal/model"
)

// DefaultFrameCacheLimit is how many recent frames are kept for classification.
const DefaultFrameCacheLimit = 5

type cacheEntry struct {
	timestamp float64
	frame     model.Frame
}

// CacheStats is a snapshot of FrameCache counters.
type CacheStats struct {
	Size      int    `json:"size"`
	Limit     int    `json:"limit"`
	Puts      uint64 `json:"puts"`
	Evictions uint64 `json:"evictions"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
}

// FrameCache keeps the most recent frames ordered by capture timestamp.
// When the limit is exceeded the oldest timestamp is evicted, regardless of
// how recently it was read.
type FrameCache struct {
	entries []cacheEntry // ascending by timestamp
	limit   int
	mu      sync.RWMutex

	puts, evictions uint64
	hits, misses    uint64
	statsMu         sync.Mutex
}

// NewFrameCache creates a cache holding at most limit frames.
func NewFrameCache(limit int) *FrameCache {
	if limit <= 0 {
		limit = DefaultFrameCacheLimit
	}
	return &FrameCache{
		entries: make([]cacheEntry, 0, limit+1),
		limit:   limit,
	}
}

// Put stores frame under timestamp, replacing an existing entry with the same
// timestamp, then evicts the oldest entries above the limit.
func (c *FrameCache) Put(timestamp float64, frame model.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].timestamp >= timestamp })
	if i < len(c.entries) && c.entries[i].timestamp == timestamp {
		c.entries[i].frame = frame
	} else {
		c.entries = append(c.entries, cacheEntry{})
		copy(c.entries[i+1:], c.entries[i:])
		c.entries[i] = cacheEntry{timestamp: timestamp, frame: frame}
	}

	evicted := 0
	for len(c.entries) > c.limit {
		c.entries[0] = cacheEntry{}
		c.entries = c.entries[1:]
		evicted++
	}
	c.statsMu.Lock()
	c.puts++
	c.evictions += uint64(evicted)
	c.statsMu.Unlock()
}

// Get returns the frame stored under timestamp.
func (c *FrameCache) Get(timestamp float64) (model.Frame, bool) {
	c.mu.RLock()
	i := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].timestamp >= timestamp })
	found := i < len(c.entries) && c.entries[i].timestamp == timestamp
	var frame model.Frame
	if found {
		frame = c.entries[i].frame
	}
	c.mu.RUnlock()

	c.statsMu.Lock()
	if found {
		c.hits++
	} else {
		c.misses++
	}
	c.statsMu.Unlock()

	return frame, found
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Timestamps returns the cached timestamps, oldest first.
func (c *FrameCache) Timestamps() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]float64, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.timestamp
	}
	return out
}

// Stats returns a snapshot of the cache counters.
func (c *FrameCache) Stats() CacheStats {
	size := c.Len()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return CacheStats{
		Size:      size,
		Limit:     c.limit,
		Puts:      c.puts,
		Evictions: c.evictions,
		Hits:      c.hits,
		Misses:    c.misses,
	}
}
