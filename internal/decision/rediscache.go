package decision

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares the decision cache across gateway replicas. Redis
// errors degrade to cache misses; the engine re-evaluates.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a store backed by the given Redis client.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

// Get fetches and decodes the decision stored under the key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Decision, bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("decision cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		s.logger.Warn("decision cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	d.Cached = true
	return &d, true
}

// Put stores the decision with the configured TTL. SET overwrites any
// concurrent write; last writer wins.
func (s *RedisStore) Put(ctx context.Context, key string, d *Decision) {
	raw, err := json.Marshal(d)
	if err != nil {
		s.logger.Warn("decision cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("decision cache write failed", "key", key, "error", err)
	}
}
