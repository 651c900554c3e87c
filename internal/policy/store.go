package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Fetcher retrieves a policy pack from the remote directory.
type Fetcher interface {
	FetchPolicy(ctx context.Context, policyID string) (*Pack, error)
}

// CacheMetrics records policy cache hit/miss outcomes.
type CacheMetrics interface {
	RecordCacheLookup(cache string, hit bool)
}

// Store fetches policy packs through a bounded short-TTL cache. Packs are
// immutable once cached; stale entries are evicted and re-fetched.
type Store struct {
	mu      sync.RWMutex
	entries map[string]storeEntry
	ttl     time.Duration
	fetcher Fetcher
	metrics CacheMetrics
	logger  *slog.Logger
	now     func() time.Time
}

type storeEntry struct {
	pack    *Pack
	expires time.Time
}

// NewStore creates a policy store with the given cache TTL.
func NewStore(fetcher Fetcher, ttl time.Duration, metrics CacheMetrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries: make(map[string]storeEntry),
		ttl:     ttl,
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the pack for the given id, from cache when fresh. It fails
// with *NotFoundError when the directory has no such pack, or the directory
// client's transport error otherwise.
func (s *Store) Get(ctx context.Context, policyID string) (*Pack, error) {
	s.mu.RLock()
	entry, ok := s.entries[policyID]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expires) {
		s.recordLookup(true)
		return entry.pack, nil
	}
	s.recordLookup(false)

	pack, err := s.fetcher.FetchPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries[policyID] = storeEntry{pack: pack, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Debug("policy pack fetched",
		"policy_id", policyID,
		"requires_capabilities", len(pack.RequiresCapabilities),
	)
	return pack, nil
}

func (s *Store) recordLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup("policy", hit)
	}
}
