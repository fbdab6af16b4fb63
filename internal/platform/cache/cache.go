// Package cache provides a cache-aside layer over a shared key-value store.
// The underlying store is an optimization, never a correctness dependency:
// every KV failure is swallowed and logged, and callers see at worst a miss.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"marketpulse/internal/platform/logger"
	"marketpulse/internal/platform/metrics"
)

// KV is the seam over the shared key-value store. Implementations may fail;
// Store is what swallows those failures.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Store wraps a KV with the failure policy the pipeline relies on
type Store struct {
	kv  KV
	log logger.Logger
}

// New builds a Store over kv. A nil kv yields a store that always misses.
func New(kv KV) *Store {
	return &Store{kv: kv, log: *logger.Named("cache")}
}

// Key builds a stable cache key as <domain>:<op>:<hash-of-params>
func Key(domain, op string, params ...string) string {
	h := fnv.New64a()
	for _, p := range params {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%s:%s:%x", domain, op, h.Sum64())
}

// domainOf extracts the key domain for metric labels
func domainOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "unknown"
}

// Get returns the cached value or a miss. Store failures count as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if s == nil || s.kv == nil {
		return nil, false
	}
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		metrics.CacheErrors.Inc()
		s.log.Warn().Err(err).Str("key", key).Msg("cache get failed; treating as miss")
		return nil, false
	}
	if ok {
		metrics.CacheHits.WithLabelValues(domainOf(key)).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(domainOf(key)).Inc()
	}
	return v, ok
}

// Set writes a value with a TTL and reports success. Never returns an error.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if s == nil || s.kv == nil {
		return false
	}
	if err := s.kv.Set(ctx, key, value, ttl); err != nil {
		metrics.CacheErrors.Inc()
		s.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		return false
	}
	return true
}

// Del removes a key and reports success. Never returns an error.
func (s *Store) Del(ctx context.Context, key string) bool {
	if s == nil || s.kv == nil {
		return false
	}
	if err := s.kv.Del(ctx, key); err != nil {
		metrics.CacheErrors.Inc()
		s.log.Warn().Err(err).Str("key", key).Msg("cache del failed")
		return false
	}
	return true
}

// Exists reports presence. Store failures read as absent.
func (s *Store) Exists(ctx context.Context, key string) bool {
	if s == nil || s.kv == nil {
		return false
	}
	ok, err := s.kv.Exists(ctx, key)
	if err != nil {
		metrics.CacheErrors.Inc()
		s.log.Warn().Err(err).Str("key", key).Msg("cache exists failed")
		return false
	}
	return ok
}

// GetOrSet returns the cached value when present, otherwise runs producer,
// best-effort stores its result, and returns it. Producer failures propagate
// unchanged; the cache layer never masks them.
func (s *Store) GetOrSet(
	ctx context.Context,
	key string,
	ttl time.Duration,
	producer func(ctx context.Context) ([]byte, error),
) ([]byte, error) {
	if v, ok := s.Get(ctx, key); ok {
		return v, nil
	}
	v, err := producer(ctx)
	if err != nil {
		return nil, err
	}
	s.Set(ctx, key, v, ttl)
	return v, nil
}

// GetOrSetJSON is GetOrSet for typed values serialized as JSON.
// An unreadable cached value is treated as a miss, not an error.
func GetOrSetJSON[T any](
	ctx context.Context,
	s *Store,
	key string,
	ttl time.Duration,
	producer func(ctx context.Context) (T, error),
) (T, error) {
	if raw, ok := s.Get(ctx, key); ok {
		var out T
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		s.Del(ctx, key)
	}
	out, err := producer(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if raw, err := json.Marshal(out); err == nil {
		s.Set(ctx, key, raw, ttl)
	}
	return out, nil
}
