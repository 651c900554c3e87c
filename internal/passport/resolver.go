package passport

import (
	"context"
	"fmt"
	"log/slog"
)

// NotFoundError indicates the directory has no passport for the agent.
type NotFoundError struct {
	AgentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("passport: agent %q not found", e.AgentID)
}

// RevokedError indicates the passport exists but is not active.
type RevokedError struct {
	AgentID string
	Status  Status
}

func (e *RevokedError) Error() string {
	return fmt.Sprintf("passport: agent %q is %s", e.AgentID, e.Status)
}

// DirectoryError indicates the directory could not be reached. Timeout
// distinguishes deadline expiry from other transport failures.
type DirectoryError struct {
	Err     error
	Timeout bool
}

func (e *DirectoryError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("passport: directory timeout: %v", e.Err)
	}
	return fmt.Sprintf("passport: directory unavailable: %v", e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// Fetcher retrieves a passport from the remote directory. Implementations
// return the directory package's typed errors on failure.
type Fetcher interface {
	FetchPassport(ctx context.Context, agentID string) (*Passport, error)
}

// CacheMetrics records passport cache hit/miss outcomes.
type CacheMetrics interface {
	RecordCacheLookup(cache string, hit bool)
}

// Resolver fetches and validates passports, consulting the cache first.
type Resolver struct {
	cache   *Cache
	fetcher Fetcher
	metrics CacheMetrics
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil logger is replaced with
// slog.Default(); metrics may be nil.
func NewResolver(cache *Cache, fetcher Fetcher, metrics CacheMetrics, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cache:   cache,
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve returns the active passport for the agent. It fails with
// *NotFoundError when the directory has no record, *RevokedError when the
// passport status is not active, and *DirectoryError on transport failure.
// Only active passports are cached, so a revoked agent is re-checked against
// the directory on every attempt until the directory record changes.
func (r *Resolver) Resolve(ctx context.Context, agentID string) (*Passport, error) {
	if agentID == "" {
		return nil, &NotFoundError{AgentID: agentID}
	}

	if p, ok := r.cache.Get(agentID); ok {
		r.recordLookup(true)
		return p, nil
	}
	r.recordLookup(false)

	p, err := r.fetcher.FetchPassport(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if !p.Active() {
		r.logger.Warn("passport not active",
			"agent_id", agentID,
			"status", string(p.Status),
		)
		return nil, &RevokedError{AgentID: agentID, Status: p.Status}
	}

	r.cache.Put(agentID, p)
	r.logger.Debug("passport resolved",
		"agent_id", agentID,
		"assurance_level", string(p.AssuranceLevel),
		"capabilities", len(p.Capabilities),
	)
	return p, nil
}

func (r *Resolver) recordLookup(hit bool) {
	if r.metrics != nil {
		r.metrics.RecordCacheLookup("passport", hit)
	}
}
