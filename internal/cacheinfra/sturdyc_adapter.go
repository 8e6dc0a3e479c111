package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc cache adapter.
type Config struct {
	// Capacity is the maximum number of cached reads across all resources.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is how long sturdyc keeps an entry before dropping it. The resource
	// client decides staleness on its own clock, so TTL only bounds memory and
	// has to be at least the longest stale window in use.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EarlyRefresh lets sturdyc refresh hot entries in the background before
	// they expire. Nil disables it, which is the default: a background
	// refresh would race with write invalidation.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage caches sturdyc.ErrNotFound results.
	MissingRecordStorage bool

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns a Config sized for a frontend session: a few thousand
// pages and records, collected after an hour, which covers every
// stale window of the default registry.
func DefaultConfig() Config {
	return Config{
		Capacity:           5000,
		NumShards:          256,
		TTL:                time.Hour,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the optional parts of Config to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
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

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.NumShards > c.Capacity {
		return &ConfigError{Field: "NumShards", Message: "must not exceed Capacity"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if r := c.EarlyRefresh; r != nil {
		if r.MinAsyncRefreshTime < 0 || r.MaxAsyncRefreshTime < 0 || r.SyncRefreshTime < 0 || r.RetryBaseDelay < 0 {
			return &ConfigError{Field: "EarlyRefresh", Message: "durations must be non-negative"}
		}
		if r.MinAsyncRefreshTime > r.MaxAsyncRefreshTime {
			return &ConfigError{Field: "EarlyRefresh.MinAsyncRefreshTime", Message: "must not exceed MaxAsyncRefreshTime"}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// SturdycService wraps a sturdyc client. It satisfies cache.CacheService.
type SturdycService struct {
	client *sturdyc.Client[any]
}

// NewSturdycService validates cfg and builds the sturdyc client.
func NewSturdycService(cfg Config) (*SturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycService{client: client}, nil
}

// GetOrFetch returns the cached value for key or runs fetchFn. Concurrent
// callers for the same key wait on a single fetchFn invocation. Errors are
// never cached.
func (s *SturdycService) GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error) {
	if fetchFn == nil {
		return nil, &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}
	return s.client.GetOrFetch(ctx, key, fetchFn)
}

// Peek returns the cached value without fetching.
func (s *SturdycService) Peek(key string) (any, bool) {
	return s.client.Get(key)
}

// Delete removes one entry.
func (s *SturdycService) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix and reports
// how many were removed.
func (s *SturdycService) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
			removed++
		}
	}
	return removed, nil
}

// InvalidateKeys removes the given entries.
func (s *SturdycService) InvalidateKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Keys lists the cached keys.
func (s *SturdycService) Keys() []string {
	return s.client.ScanKeys()
}

// Size reports the number of cached entries.
func (s *SturdycService) Size() int {
	return s.client.Size()
}
