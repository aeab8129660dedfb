// Package promptcache caches expensive shared contexts (voice clone
// prompts, adapter prompts) per group key. Entries are scoped to the
// active executor variant: the variant pool clears the whole cache on
// every switch because prompts are not portable across models.
package promptcache

import (
	"sync"

	"yqhp/tts-engine/pkg/types"
)

// Builder constructs the shared context for a key on cache miss.
type Builder func() (*types.SharedContext, error)

// Cache is a mutex-guarded lazy cache. GetOrCreate is not re-entrant per
// key; callers operate under the scheduler's generation lock, so a build
// never races with another build or a clear.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*types.SharedContext

	hits   uint64
	misses uint64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*types.SharedContext),
	}
}

// GetOrCreate returns the cached context for key, invoking build exactly
// once on first use. Build errors are returned and not cached, so a later
// call retries.
func (c *Cache) GetOrCreate(key string, build Builder) (*types.SharedContext, error) {
	c.mu.Lock()
	if sc, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return sc, nil
	}
	c.misses++
	c.mu.Unlock()

	// Built outside the lock: builds are expensive and serialized by the
	// caller's generation lock anyway.
	sc, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = sc
	c.mu.Unlock()
	return sc, nil
}

// Clear removes one entry.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// ClearAll removes every entry. Invoked on every variant switch.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*types.SharedContext)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
