package caseprep

import "sync"

// Cache stores importance score vectors for the process lifetime. Entries are
// appended, never invalidated; cardinality is bounded by the distinct
// case/candidate-set pairs seen. Implementations must be safe for concurrent
// use by multiple in-flight requests.
type Cache interface {
	Get(key string) ([]float64, bool)
	Put(key string, scores []float64)
}

// memoryCache is a mutex-guarded map cache. Concurrent writers racing on the
// same key simply overwrite each other with an equally valid vector; readers
// never observe a partial entry because slices are copied on both sides of
// the lock.
type memoryCache struct {
	mu sync.RWMutex
	m  map[string][]float64
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() Cache {
	return &memoryCache{m: make(map[string][]float64)}
}

func (c *memoryCache) Get(key string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out, true
}

func (c *memoryCache) Put(key string, scores []float64) {
	stored := make([]float64, len(scores))
	copy(stored, scores)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = stored
}
