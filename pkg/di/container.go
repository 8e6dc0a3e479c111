package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/goliatone/go-resource-cache/cache"
	"github.com/goliatone/go-resource-cache/config"
	"github.com/goliatone/go-resource-cache/endpoint"
	"github.com/goliatone/go-resource-cache/internal/logging"
	"github.com/goliatone/go-resource-cache/invalidation"
	"github.com/goliatone/go-resource-cache/metrics"
	"github.com/goliatone/go-resource-cache/registry"
	"github.com/goliatone/go-resource-cache/resourcecache"
	"github.com/goliatone/go-resource-cache/transport"
)

// Options are the collaborators a Container wires together. Only BaseURL is
// required.
type Options struct {
	BaseURL     string
	Cache       cache.Config
	Transport   transport.Config
	Registry    *registry.Registry
	Broadcaster invalidation.Broadcaster
	Logger      *zap.Logger
	Recorder    metrics.Recorder
	HTTPClient  *http.Client
}

// Container provides dependency injection for the resource cache components.
// It owns one cache service, key serializer, store, executor and resolver,
// and creates typed resource clients bound to them.
type Container struct {
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	config        cache.Config
	registry      *registry.Registry
	store         *resourcecache.Store
	executor      *transport.Executor
	resolver      *endpoint.Resolver
	broadcaster   invalidation.Broadcaster
	logger        *zap.Logger
	recorder      metrics.Recorder
	prometheus    *metrics.Prometheus
}

// NewContainer validates opts and builds the component graph.
func NewContainer(opts Options) (*Container, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("di: base URL is required")
	}

	cacheService, err := cache.NewCacheService(opts.Cache)
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	for _, name := range reg.Names() {
		def, _ := reg.Lookup(name)
		if !opts.Cache.CoversStaleTime(def.Stale()) {
			return nil, fmt.Errorf("di: cache TTL %s is shorter than the stale time of %q (%s)", opts.Cache.TTL, name, def.Stale())
		}
	}

	broadcaster := opts.Broadcaster
	if broadcaster == nil {
		broadcaster = invalidation.Noop{}
	}
	logger := logging.OrNop(opts.Logger)
	recorder := metrics.OrNop(opts.Recorder)

	execOpts := []transport.Option{transport.WithLogger(logger), transport.WithRecorder(recorder)}
	if opts.HTTPClient != nil {
		execOpts = append(execOpts, transport.WithHTTPClient(opts.HTTPClient))
	}
	executor, err := transport.New(opts.Transport, execOpts...)
	if err != nil {
		return nil, err
	}

	keySerializer := cache.NewDefaultKeySerializer()
	store := resourcecache.NewStore(cacheService,
		resourcecache.WithKeySerializer(keySerializer),
		resourcecache.WithRegistry(reg),
		resourcecache.WithBroadcaster(broadcaster),
		resourcecache.WithLogger(logger),
		resourcecache.WithRecorder(recorder),
	)

	c := &Container{
		cacheService:  cacheService,
		keySerializer: keySerializer,
		config:        opts.Cache,
		registry:      reg,
		store:         store,
		executor:      executor,
		resolver:      endpoint.NewResolver(opts.BaseURL),
		broadcaster:   broadcaster,
		logger:        logger,
		recorder:      recorder,
	}
	if p, ok := recorder.(*metrics.Prometheus); ok {
		c.prometheus = p
	}
	return c, nil
}

// NewContainerWithDefaults creates a container for baseURL using the default
// cache, transport and registry.
func NewContainerWithDefaults(baseURL string) (*Container, error) {
	return NewContainer(Options{
		BaseURL:   baseURL,
		Cache:     cache.DefaultConfig(),
		Transport: transport.DefaultConfig(),
	})
}

// FromConfig builds a container from command configuration: logger, registry
// file, invalidation driver and prometheus collectors included.
func FromConfig(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	reg := registry.Default()
	if cfg.Registry.File != "" {
		if reg, err = registry.Load(cfg.Registry.File); err != nil {
			return nil, err
		}
	}

	var broadcaster invalidation.Broadcaster
	switch cfg.Invalidation.Driver {
	case config.DriverRedis:
		broadcaster, err = invalidation.NewRedis(ctx, cfg.RedisConfig(), invalidation.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	case config.DriverLocal:
		broadcaster = invalidation.NewLocal()
	}

	var recorder metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewPrometheus(cfg.Metrics.Namespace)
	}

	c, err := NewContainer(Options{
		BaseURL:     cfg.Backend.URL,
		Cache:       cfg.CacheConfig(),
		Transport:   cfg.TransportConfig(),
		Registry:    reg,
		Broadcaster: broadcaster,
		Logger:      logger,
		Recorder:    recorder,
	})
	if err != nil && broadcaster != nil {
		_ = broadcaster.Close()
	}
	return c, err
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Registry returns the resource definitions.
func (c *Container) Registry() *registry.Registry {
	return c.registry
}

// Store returns the shared query cache binding.
func (c *Container) Store() *resourcecache.Store {
	return c.store
}

// Executor returns the fetch executor.
func (c *Container) Executor() *transport.Executor {
	return c.executor
}

// Resolver returns the endpoint resolver.
func (c *Container) Resolver() *endpoint.Resolver {
	return c.resolver
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Metrics returns the prometheus recorder, or nil when metrics are off.
func (c *Container) Metrics() *metrics.Prometheus {
	return c.prometheus
}

// MetricsHandler serves the prometheus registry, or nil when metrics are off.
func (c *Container) MetricsHandler() http.Handler {
	if c.prometheus == nil {
		return nil
	}
	return c.prometheus.Handler()
}

// Listen applies invalidations from other processes until ctx is done.
func (c *Container) Listen(ctx context.Context) error {
	return c.store.Listen(ctx)
}

// Close releases the broadcaster and flushes the logger.
func (c *Container) Close() error {
	err := c.broadcaster.Close()
	_ = c.logger.Sync()
	return err
}

// NewResourceClient returns a client for the registered resource name.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewResourceClient[catalog.Department](container, catalog.Departments)
func NewResourceClient[T any](container *Container, name string) (*resourcecache.Client[T], error) {
	def, err := container.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return resourcecache.NewClient[T](container.store, container.executor, container.resolver, def)
}
