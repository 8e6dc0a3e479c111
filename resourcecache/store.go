package resourcecache

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-resource-cache/cache"
	"github.com/goliatone/go-resource-cache/internal/logging"
	"github.com/goliatone/go-resource-cache/invalidation"
	"github.com/goliatone/go-resource-cache/metrics"
	"github.com/goliatone/go-resource-cache/registry"
)

// Invalidation sources reported to metrics and logs.
const (
	SourceMutation   = "mutation"
	SourceDependency = "dependency"
	SourceManual     = "manual"
	SourceRemote     = "remote"
)

// entry is the freshness record of one cached read. A record belongs to the
// generation of its prefix at fetch time; bumping the generation makes every
// older record stale at once.
type entry struct {
	fetchedAt  time.Time
	generation uint64
}

type freshness int

const (
	absent freshness = iota
	fresh
	stale
)

// Store is the process-wide query cache shared by every resource client. It
// owns the backing cache, the freshness records and invalidation.
type Store struct {
	id          string
	cache       cache.CacheService
	keys        cache.KeySerializer
	registry    *registry.Registry
	broadcaster invalidation.Broadcaster
	logger      *zap.Logger
	recorder    metrics.Recorder
	now         func() time.Time

	entries     *xsync.MapOf[string, entry]
	generations *xsync.MapOf[string, uint64]
}

// Option configures a Store.
type Option func(*Store)

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer(k cache.KeySerializer) Option {
	return func(s *Store) {
		if k != nil {
			s.keys = k
		}
	}
}

// WithRegistry sets the registry used to find dependent resources.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Store) {
		s.registry = r
	}
}

// WithBroadcaster announces local invalidations to other processes.
func WithBroadcaster(b invalidation.Broadcaster) Option {
	return func(s *Store) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logging.OrNop(l)
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Store) {
		s.recorder = metrics.OrNop(r)
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wraps svc.
func NewStore(svc cache.CacheService, opts ...Option) *Store {
	s := &Store{
		id:          uuid.NewString(),
		cache:       svc,
		keys:        cache.NewDefaultKeySerializer(),
		broadcaster: invalidation.Noop{},
		logger:      zap.NewNop(),
		recorder:    metrics.Nop{},
		now:         time.Now,
		entries:     xsync.NewMapOf[string, entry](),
		generations: xsync.NewMapOf[string, uint64](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies this store in broadcast messages.
func (s *Store) ID() string {
	return s.id
}

// Len reports the number of cached reads.
func (s *Store) Len() int {
	return s.cache.Size()
}

// Invalidate drops every cached read of resource in scope, and of the
// resources depending on it, then announces it to other processes. An empty
// scope invalidates all scopes. A failed broadcast is returned after the
// local invalidation has completed.
func (s *Store) Invalidate(ctx context.Context, resource, scope string) error {
	return s.invalidate(ctx, resource, scope, SourceManual)
}

func (s *Store) invalidate(ctx context.Context, resource, scope, source string) error {
	resources := []string{resource}
	s.invalidateLocal(ctx, resource, scope, source)

	for _, dep := range s.dependents(resource) {
		s.invalidateLocal(ctx, dep, scope, SourceDependency)
		resources = append(resources, dep)
	}

	msg := invalidation.Message{Origin: s.id, Scope: scope, Resources: resources, At: s.now()}
	if err := s.broadcaster.Publish(ctx, msg); err != nil {
		s.logger.Warn("broadcasting invalidation failed",
			zap.String("resource", resource),
			zap.String("scope", scope),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) dependents(resource string) []string {
	if s.registry == nil {
		return nil
	}
	return s.registry.Dependents(resource)
}

// invalidateLocal bumps the generation before deleting so a fetch already in
// flight cannot record its result as fresh.
func (s *Store) invalidateLocal(ctx context.Context, resource, scope, source string) int {
	var prefix string
	if scope == "" {
		prefix = s.keys.ResourcePrefix(resource)
		s.generations.Range(func(p string, _ uint64) bool {
			if strings.HasPrefix(p, prefix) {
				s.bump(p)
			}
			return true
		})
	} else {
		prefix = s.keys.Prefix(resource, scope)
		s.bump(prefix)
	}

	s.entries.Range(func(key string, _ entry) bool {
		if strings.HasPrefix(key, prefix) {
			s.entries.Delete(key)
		}
		return true
	})

	removed, err := s.cache.DeleteByPrefix(ctx, prefix)
	if err != nil {
		s.logger.Warn("deleting cached reads failed", zap.String("prefix", prefix), zap.Error(err))
	}

	s.recorder.ObserveInvalidation(resource, source)
	s.logger.Debug("invalidated",
		zap.String("resource", resource),
		zap.String("scope", scope),
		zap.String("source", source),
		zap.Int("removed", removed))
	return removed
}

// Listen applies invalidations published by other processes until ctx is
// done. Messages from this store are ignored.
func (s *Store) Listen(ctx context.Context) error {
	return s.broadcaster.Subscribe(ctx, func(ctx context.Context, msg invalidation.Message) {
		if msg.Origin == s.id {
			return
		}
		for _, resource := range msg.Resources {
			s.invalidateLocal(ctx, resource, msg.Scope, SourceRemote)
		}
	})
}

func (s *Store) bump(prefix string) {
	s.generations.Compute(prefix, func(old uint64, _ bool) (uint64, bool) {
		return old + 1, false
	})
}

func (s *Store) generation(prefix string) uint64 {
	gen, _ := s.generations.LoadOrStore(prefix, 0)
	return gen
}

func (s *Store) freshness(key, prefix string, window time.Duration) (entry, freshness) {
	e, ok := s.entries.Load(key)
	if !ok {
		return e, absent
	}
	if e.generation != s.generation(prefix) || s.now().Sub(e.fetchedAt) >= window {
		return e, stale
	}
	return e, fresh
}

func (s *Store) record(key string, e entry) {
	s.entries.Store(key, e)
}

func (s *Store) forget(ctx context.Context, key string) {
	s.entries.Delete(key)
	_ = s.cache.Delete(ctx, key)
}
