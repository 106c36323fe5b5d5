package cacheinfra

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/viccon/sturdyc"

	"github.com/usdfinancial/service-base/cache"
	"github.com/usdfinancial/service-base/serviceerr"
)

// Config sizes the shared sturdyc cache used by repositories.
type Config struct {
	// Capacity is the maximum number of entries across all shards.
	Capacity int `yaml:"capacity"`

	// NumShards splits the keyspace to reduce lock contention.
	NumShards int `yaml:"num_shards"`

	TTL time.Duration `yaml:"ttl"`

	// EvictionPercentage is the share of a full shard dropped at once, 1-100.
	EvictionPercentage int `yaml:"eviction_percentage"`

	// EarlyRefresh refreshes hot keys in the background before they expire.
	// Nil disables it.
	EarlyRefresh *EarlyRefreshConfig `yaml:"early_refresh"`

	// MissingRecordStorage caches not-found results so repeated lookups of
	// absent rows do not reach the database.
	MissingRecordStorage bool `yaml:"missing_record_storage"`

	// EvictionInterval overrides how often expired entries are swept.
	EvictionInterval time.Duration `yaml:"eviction_interval"`
}

// EarlyRefreshConfig mirrors sturdyc.WithEarlyRefreshes.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration `yaml:"min_async_refresh_time"`
	MaxAsyncRefreshTime time.Duration `yaml:"max_async_refresh_time"`
	SyncRefreshTime     time.Duration `yaml:"sync_refresh_time"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay"`
}

// DefaultConfig returns the shared cache defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                cache.DefaultTTL,
		EvictionPercentage: 10,
		EarlyRefresh: &EarlyRefreshConfig{
			MinAsyncRefreshTime: 2 * time.Minute,
			MaxAsyncRefreshTime: 3 * time.Minute,
			SyncRefreshTime:     4 * time.Minute,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		MissingRecordStorage: true,
	}
}

func (c Config) options() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return &cache.ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	case c.NumShards <= 0:
		return &cache.ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	case c.NumShards > c.Capacity:
		return &cache.ConfigError{Field: "NumShards", Message: "must not exceed Capacity"}
	case c.TTL <= 0:
		return &cache.ConfigError{Field: "TTL", Message: "must be greater than 0"}
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return &cache.ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if r := c.EarlyRefresh; r != nil {
		if r.MinAsyncRefreshTime < 0 || r.MaxAsyncRefreshTime < 0 || r.SyncRefreshTime < 0 || r.RetryBaseDelay < 0 {
			return &cache.ConfigError{Field: "EarlyRefresh", Message: "durations must be non-negative"}
		}
		if r.MinAsyncRefreshTime > r.MaxAsyncRefreshTime {
			return &cache.ConfigError{Field: "EarlyRefresh.MinAsyncRefreshTime", Message: "must not exceed MaxAsyncRefreshTime"}
		}
	}
	return nil
}

// Shared is a sharded cache.CacheService backed by sturdyc. Unlike
// cache.Cache it is meant to be shared by many repositories; keys carry the
// table namespace so Clear can scope invalidation.
type Shared struct {
	client  *sturdyc.Client[any]
	missing bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

var _ cache.CacheService = (*Shared)(nil)

// NewShared validates cfg and creates the sturdyc client.
func NewShared(cfg Config) (*Shared, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.options()...,
	)
	return &Shared{client: client, missing: cfg.MissingRecordStorage}, nil
}

// GetOrFetch implements cache.CacheService. Concurrent misses for the same
// key share one fetch. With missing record storage, a not-found result is
// remembered and reported as sql.ErrNoRows.
func (s *Shared) GetOrFetch(ctx context.Context, key string, fetchFn cache.FetchFn[any]) (any, error) {
	if fetchFn == nil {
		return nil, cache.ErrNilFetchFn
	}

	if v, ok := s.client.Get(key); ok {
		s.hits.Add(1)
		return v, nil
	}
	s.misses.Add(1)

	v, err := s.client.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fetchFn(ctx)
		if err != nil && s.missing && isNotFound(err) {
			return nil, sturdyc.ErrNotFound
		}
		return v, err
	})
	if errors.Is(err, sturdyc.ErrNotFound) || errors.Is(err, sturdyc.ErrMissingRecord) {
		return nil, sql.ErrNoRows
	}
	return v, err
}

func isNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || serviceerr.IsKind(err, serviceerr.KindNotFound)
}

// Delete implements cache.CacheService.
func (s *Shared) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	s.evictions.Add(1)
	return nil
}

// Clear removes every key containing pattern; an empty pattern removes all.
func (s *Shared) Clear(pattern string) int {
	removed := 0
	for _, key := range s.client.ScanKeys() {
		if pattern == "" || strings.Contains(key, pattern) {
			s.client.Delete(key)
			removed++
		}
	}
	s.evictions.Add(uint64(removed))
	return removed
}

// Len returns the number of stored entries.
func (s *Shared) Len() int {
	return s.client.Size()
}

// Stats reports counters in the same shape as cache.Cache. Evictions only
// count explicit deletes; capacity evictions happen inside sturdyc.
func (s *Shared) Stats() cache.Stats {
	hits, misses := s.hits.Load(), s.misses.Load()
	return cache.Stats{
		Hits:      hits,
		Misses:    misses,
		Evictions: s.evictions.Load(),
		Size:      s.client.Size(),
		HitRate:   cache.FormatHitRate(hits, misses),
	}
}
