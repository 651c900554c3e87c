package decision

import (
	"context"
	"sync"
	"time"
)

// Store memoizes allow-decisions. Implementations are best-effort: a miss
// or a failed write only costs a re-evaluation, never correctness, because
// denials are not stored and entries expire on the decision TTL.
type Store interface {
	Get(ctx context.Context, key string) (*Decision, bool)
	Put(ctx context.Context, key string, d *Decision)
}

const defaultMaxDecisions = 10000

// MemoryStore is the default in-process decision store. Concurrent writers
// racing on the same key are harmless: both computed equivalent decisions
// and the last write wins.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	decision *Decision
	expires  time.Time
}

// NewMemoryStore creates a bounded in-memory store. maxEntries <= 0 selects
// the default bound.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxDecisions
	}
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached decision for the key, evicting it lazily when
// expired.
func (s *MemoryStore) Get(_ context.Context, key string) (*Decision, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expires) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && s.now().After(cur.expires) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return entry.decision, true
}

// Put stores a decision under the key. Expired entries are swept first;
// when the store is still full an arbitrary entry is evicted so the bound
// holds.
func (s *MemoryStore) Put(_ context.Context, key string, d *Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.maxEntries {
		now := s.now()
		for k, e := range s.entries {
			if now.After(e.expires) {
				delete(s.entries, k)
			}
		}
		if len(s.entries) >= s.maxEntries {
			for k := range s.entries {
				delete(s.entries, k)
				break
			}
		}
	}
	s.entries[key] = memoryEntry{decision: d, expires: s.now().Add(s.ttl)}
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
