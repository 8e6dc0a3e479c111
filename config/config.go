// Package config loads settings for the resourcectl and mockapi commands.
//
// Priority (highest to lowest):
//  1. Environment variables with the RESOURCE_ prefix (e.g. RESOURCE_BACKEND_URL)
//  2. The config file (resourcecache.yaml in the working directory, or an explicit path)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/goliatone/go-resource-cache/cache"
	"github.com/goliatone/go-resource-cache/internal/logging"
	"github.com/goliatone/go-resource-cache/invalidation"
	"github.com/goliatone/go-resource-cache/session"
	"github.com/goliatone/go-resource-cache/transport"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RESOURCE"

// Invalidation drivers.
const (
	DriverNone  = "none"
	DriverLocal = "local"
	DriverRedis = "redis"
)

// Config is the full command configuration.
type Config struct {
	Backend      BackendConfig
	Session      SessionConfig
	Cache        CacheConfig
	Registry     RegistryConfig
	Invalidation InvalidationConfig
	Log          LogConfig
	Metrics      MetricsConfig
	MockAPI      MockAPIConfig
}

// BackendConfig points the executor at the API.
type BackendConfig struct {
	URL         string
	Timeout     time.Duration
	ScopeHeader string
	RateLimit   float64
	RateBurst   int
}

// SessionConfig holds the credentials used by resourcectl.
type SessionConfig struct {
	Token string
	Scope string
}

// CacheConfig sizes the query cache.
type CacheConfig struct {
	Capacity           int
	Shards             int
	TTL                time.Duration
	EvictionPercentage int
}

// RegistryConfig selects the resource definitions. An empty file uses the
// embedded defaults.
type RegistryConfig struct {
	File string
}

// InvalidationConfig selects how invalidations reach other processes.
type InvalidationConfig struct {
	Driver string
	Redis  RedisConfig
}

// RedisConfig configures the redis broadcaster.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig toggles prometheus collectors.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Addr      string
}

// MockAPIConfig configures the development backend.
type MockAPIConfig struct {
	Addr    string
	Seed    int64
	Records int
	Latency time.Duration
}

// Load reads configuration from path (optional), the environment and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("resourcecache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Backend: BackendConfig{
			URL:         v.GetString("backend.url"),
			Timeout:     v.GetDuration("backend.timeout"),
			ScopeHeader: v.GetString("backend.scope_header"),
			RateLimit:   v.GetFloat64("backend.rate_limit"),
			RateBurst:   v.GetInt("backend.rate_burst"),
		},
		Session: SessionConfig{
			Token: v.GetString("session.token"),
			Scope: v.GetString("session.scope"),
		},
		Cache: CacheConfig{
			Capacity:           v.GetInt("cache.capacity"),
			Shards:             v.GetInt("cache.shards"),
			TTL:                v.GetDuration("cache.ttl"),
			EvictionPercentage: v.GetInt("cache.eviction_percentage"),
		},
		Registry: RegistryConfig{
			File: v.GetString("registry.file"),
		},
		Invalidation: InvalidationConfig{
			Driver: strings.ToLower(v.GetString("invalidation.driver")),
			Redis: RedisConfig{
				Addr:     v.GetString("invalidation.redis.addr"),
				Password: v.GetString("invalidation.redis.password"),
				DB:       v.GetInt("invalidation.redis.db"),
				Channel:  v.GetString("invalidation.redis.channel"),
			},
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Metrics: MetricsConfig{
			Enabled:   v.GetBool("metrics.enabled"),
			Namespace: v.GetString("metrics.namespace"),
			Addr:      v.GetString("metrics.addr"),
		},
		MockAPI: MockAPIConfig{
			Addr:    v.GetString("mockapi.addr"),
			Seed:    v.GetInt64("mockapi.seed"),
			Records: v.GetInt("mockapi.records"),
			Latency: v.GetDuration("mockapi.latency"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	cacheDefaults := cache.DefaultConfig()
	transportDefaults := transport.DefaultConfig()
	logDefaults := logging.DefaultConfig()

	v.SetDefault("backend.url", "http://localhost:8090")
	v.SetDefault("backend.timeout", transportDefaults.Timeout)
	v.SetDefault("backend.scope_header", transportDefaults.ScopeHeader)
	v.SetDefault("backend.rate_limit", 0)
	v.SetDefault("backend.rate_burst", 0)

	v.SetDefault("session.token", "")
	v.SetDefault("session.scope", "")

	v.SetDefault("cache.capacity", cacheDefaults.Capacity)
	v.SetDefault("cache.shards", cacheDefaults.NumShards)
	v.SetDefault("cache.ttl", cacheDefaults.TTL)
	v.SetDefault("cache.eviction_percentage", cacheDefaults.EvictionPercentage)

	v.SetDefault("registry.file", "")

	v.SetDefault("invalidation.driver", DriverNone)
	v.SetDefault("invalidation.redis.addr", "")
	v.SetDefault("invalidation.redis.password", "")
	v.SetDefault("invalidation.redis.db", 0)
	v.SetDefault("invalidation.redis.channel", invalidation.DefaultChannel)

	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.format", logDefaults.Format)
	v.SetDefault("log.output", logDefaults.Output)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "resource_cache")
	v.SetDefault("metrics.addr", ":9102")

	v.SetDefault("mockapi.addr", ":8090")
	v.SetDefault("mockapi.seed", 42)
	v.SetDefault("mockapi.records", 35)
	v.SetDefault("mockapi.latency", 0)
}

// Validate checks cross field constraints.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Backend,
		validation.Field(&c.Backend.URL, validation.Required),
		validation.Field(&c.Backend.RateLimit, validation.Min(0.0)),
	); err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	if err := validation.ValidateStruct(&c.Invalidation,
		validation.Field(&c.Invalidation.Driver, validation.In(DriverNone, DriverLocal, DriverRedis)),
	); err != nil {
		return fmt.Errorf("invalidation: %w", err)
	}
	if c.Invalidation.Driver == DriverRedis && c.Invalidation.Redis.Addr == "" {
		return fmt.Errorf("invalidation: redis driver requires invalidation.redis.addr")
	}

	if err := validation.ValidateStruct(&c.MockAPI,
		validation.Field(&c.MockAPI.Records, validation.Min(0), validation.Max(10000)),
		validation.Field(&c.MockAPI.Latency, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("mockapi: %w", err)
	}

	cacheCfg := c.CacheConfig()
	if err := cacheCfg.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.TransportConfig().Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	return nil
}

// CacheConfig converts to the cache package configuration.
func (c *Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Capacity = c.Cache.Capacity
	cfg.NumShards = c.Cache.Shards
	cfg.TTL = c.Cache.TTL
	cfg.EvictionPercentage = c.Cache.EvictionPercentage
	return cfg
}

// TransportConfig converts to the executor configuration.
func (c *Config) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.Timeout = c.Backend.Timeout
	cfg.ScopeHeader = c.Backend.ScopeHeader
	cfg.RateLimit = c.Backend.RateLimit
	cfg.RateBurst = c.Backend.RateBurst
	return cfg
}

// LoggingConfig converts to the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, Output: c.Log.Output}
}

// RedisConfig converts to the broadcaster configuration.
func (c *Config) RedisConfig() invalidation.RedisConfig {
	r := c.Invalidation.Redis
	return invalidation.RedisConfig{Addr: r.Addr, Password: r.Password, DB: r.DB, Channel: r.Channel}
}

// SessionValue returns the configured session.
func (c *Config) SessionValue() session.Session {
	return session.Session{Token: c.Session.Token, Scope: c.Session.Scope}
}
