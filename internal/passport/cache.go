package passport

import (
	"sync"
	"time"
)

// Cache is a bounded, short-TTL in-memory passport store. Entries are
// immutable once stored; a stale entry is evicted and re-fetched, never
// patched. Safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	passport *Passport
	expires  time.Time
}

// NewCache creates a passport cache with the given TTL and entry bound.
// Non-positive bounds fall back to 10000 entries.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached passport for the agent, or false when absent or
// expired. Expired entries are evicted on read.
func (c *Cache) Get(agentID string) (*Passport, bool) {
	c.mu.RLock()
	entry, ok := c.entries[agentID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if cur, still := c.entries[agentID]; still && c.now().After(cur.expires) {
			delete(c.entries, agentID)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.passport, true
}

// Put stores a passport, replacing any previous entry wholesale. When the
// cache is full, expired entries are swept first; if still full, an
// arbitrary entry is evicted to stay within bounds.
func (c *Cache) Put(agentID string, p *Passport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[agentID]; !exists && len(c.entries) >= c.maxEntries {
		c.sweepLocked()
		if len(c.entries) >= c.maxEntries {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}
	c.entries[agentID] = cacheEntry{passport: p, expires: c.now().Add(c.ttl)}
}

// Evict removes the entry for the agent, if present.
func (c *Cache) Evict(agentID string) {
	c.mu.Lock()
	delete(c.entries, agentID)
	c.mu.Unlock()
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}
