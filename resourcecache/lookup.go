package resourcecache

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/goliatone/go-resource-cache/apierror"
	"github.com/goliatone/go-resource-cache/cache"
	"github.com/goliatone/go-resource-cache/metrics"
	"github.com/goliatone/go-resource-cache/registry"
	"github.com/goliatone/go-resource-cache/session"
)

// maxInflightRefetch bounds how often one fetch is repeated because its
// prefix was invalidated while it ran.
const maxInflightRefetch = 2

type outcome[V any] struct {
	value V
	err   error
}

// lookup serves key from the cache when fresh and otherwise fetches it once
// for every concurrent caller. The shared fetch is detached from the caller's
// cancellation; a caller that gives up stops waiting, the fetch itself is
// bounded by the executor timeout and the retry policy.
func lookup[V any](ctx context.Context, b *binding, sess session.Session, op string, args []any, fetch func(context.Context) (V, error)) (V, time.Time, error) {
	var zero V
	if !sess.Ready() {
		return zero, time.Time{}, apierror.Precondition(
			"missing " + strings.Join(sess.Missing(), " and ") + " for " + b.def.Name)
	}

	s := b.store
	name := b.def.Name
	key := s.keys.SerializeKey(name, sess.Scope, typedOp[V](op), args...)
	prefix := s.keys.Prefix(name, sess.Scope)

	e, state := s.freshness(key, prefix, b.def.Stale())
	switch state {
	case fresh:
		if v, ok, err := cache.Peek[V](s.cache, key); err == nil && ok {
			s.recorder.ObserveLookup(name, metrics.LookupHit)
			return v, e.fetchedAt, nil
		}
		s.recorder.ObserveLookup(name, metrics.LookupMiss)
	case stale:
		s.recorder.ObserveLookup(name, metrics.LookupStale)
		s.logger.Debug("refetching stale read",
			zap.String("key", key),
			zap.Duration("age", s.now().Sub(e.fetchedAt)))
		s.forget(ctx, key)
	default:
		s.recorder.ObserveLookup(name, metrics.LookupMiss)
		// a value left behind by a fetch that lost its freshness record
		_ = s.cache.Delete(ctx, key)
	}

	policy := b.def.RetryPolicy()
	shared := context.WithoutCancel(ctx)
	done := make(chan outcome[V], 1)
	go func() {
		v, err := cache.GetOrFetch(shared, s.cache, key, func(context.Context) (V, error) {
			return trackedFetch(shared, s, key, prefix, policy, fetch)
		})
		done <- outcome[V]{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, time.Time{}, apierror.FromContext(ctx.Err())
	case out := <-done:
		if out.err != nil {
			return zero, time.Time{}, normalize(out.err)
		}
		fetchedAt := s.now()
		if e, ok := s.entries.Load(key); ok {
			fetchedAt = e.fetchedAt
		}
		return out.value, fetchedAt, nil
	}
}

// trackedFetch runs fetch and records the result as fresh only if no
// invalidation of prefix happened meanwhile. An invalidated result is
// discarded and fetched again, up to maxInflightRefetch times.
func trackedFetch[V any](ctx context.Context, s *Store, key, prefix string, policy registry.RetryPolicy, fetch func(context.Context) (V, error)) (V, error) {
	for attempt := 0; ; attempt++ {
		gen := s.generation(prefix)

		v, err := withRetry(ctx, s.logger, key, policy, fetch)
		if err != nil {
			return v, err
		}

		if s.generation(prefix) == gen {
			s.record(key, entry{fetchedAt: s.now(), generation: gen})
			return v, nil
		}
		if attempt >= maxInflightRefetch {
			// not recorded: the next read refetches
			return v, nil
		}
		s.logger.Debug("discarding read invalidated in flight", zap.String("key", key))
	}
}

// withRetry applies policy to retryable failures only.
func withRetry[V any](ctx context.Context, logger *zap.Logger, key string, policy registry.RetryPolicy, fetch func(context.Context) (V, error)) (V, error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Delay), uint64(policy.MaxRetries)),
		ctx,
	)

	op := func() (V, error) {
		v, err := fetch(ctx)
		if err != nil && !apierror.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("retrying read",
			zap.String("key", key),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	return backoff.RetryNotifyWithData(op, b, notify)
}

// typedOp qualifies op with the Go type the value decodes into, so clients of
// one resource built over different record types keep separate entries.
func typedOp[V any](op string) string {
	return op + "@" + strings.ReplaceAll(reflect.TypeFor[V]().String(), ":", "%3A")
}

// normalize tags errors that did not come from the executor.
func normalize(err error) error {
	if err == nil || apierror.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, cache.ErrInvalidResultType) {
		return apierror.Wrap(err, apierror.KindDecode, 0, "cached value has unexpected type")
	}
	return apierror.FromContext(err)
}
