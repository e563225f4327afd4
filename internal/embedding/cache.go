package embedding

import "sync"

const (
	defaultCacheCapacity = 1000
	defaultEvictBatch    = 100
)

// Cache is a bounded in-process embedding cache. When an insert would
// exceed capacity it evicts the oldest-inserted entries in one batch.
// Deliberately not an LRU: which vectors survive churn is part of the
// retrieval contract.
type Cache struct {
	mu         sync.Mutex
	entries    map[string][]float32
	order      []string // insertion order
	capacity   int
	evictBatch int
}

// NewCache creates a cache; non-positive arguments take the defaults
// (1000 entries, 100 evicted per batch).
func NewCache(capacity, evictBatch int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	if evictBatch <= 0 {
		evictBatch = defaultEvictBatch
	}
	if evictBatch > capacity {
		evictBatch = capacity
	}
	return &Cache{
		entries:    make(map[string][]float32),
		capacity:   capacity,
		evictBatch: evictBatch,
	}
}

// Get returns the cached vector for the key, if any.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.entries[key]
	return vec, ok
}

// Put stores a vector. Overwriting an existing key keeps its original
// insertion position.
func (c *Cache) Put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = vec
		return
	}
	if len(c.entries) >= c.capacity {
		n := c.evictBatch
		if n > len(c.order) {
			n = len(c.order)
		}
		for _, old := range c.order[:n] {
			delete(c.entries, old)
		}
		c.order = append([]string(nil), c.order[n:]...)
	}
	c.entries[key] = vec
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
