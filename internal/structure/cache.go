package structure

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// CacheStats reports cache activity.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Cache memoizes a Reconstructor by derivation digest. Reconstruction is
// deterministic, so a hit is indistinguishable from a rebuild. Failures are
// not cached. Entries are evicted oldest first once MaxEntries is reached.
type Cache struct {
	Inner      Reconstructor
	MaxEntries int

	mu      sync.Mutex
	entries map[string]*Result
	order   []string
	stats   CacheStats
}

// NewCache wraps inner. maxEntries <= 0 means unbounded.
func NewCache(inner Reconstructor, maxEntries int) *Cache {
	return &Cache{
		Inner:      inner,
		MaxEntries: maxEntries,
		entries:    make(map[string]*Result),
	}
}

// Reconstruct returns the cached result for derivation or builds it.
func (c *Cache) Reconstruct(ctx context.Context, derivation string) (*Result, error) {
	key := digest(derivation)

	c.mu.Lock()
	if r, ok := c.entries[key]; ok {
		c.stats.Hits++
		c.mu.Unlock()
		return r, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	r, err := c.Inner.Reconstruct(ctx, derivation)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing, nil
	}
	c.entries[key] = r
	c.order = append(c.order, key)
	if c.MaxEntries > 0 && len(c.order) > c.MaxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return r, nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

func digest(derivation string) string {
	sum := sha256.Sum256([]byte(derivation))
	return hex.EncodeToString(sum[:])
}
