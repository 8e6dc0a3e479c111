package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidResultType is returned when a cached value does not have the type
// the caller asked for. It means two readers share a key with different types.
var ErrInvalidResultType = errors.New("cache: cached value has unexpected type")

// KeySerializer builds cache keys from a resource name, a scope, an operation
// and arbitrary args. Keys produced for the same inputs must be identical
// across calls, and every key must start with Prefix(resource, scope).
type KeySerializer interface {
	SerializeKey(resource, scope, op string, args ...any) string
	Prefix(resource, scope string) string
	ResourcePrefix(resource string) string
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the read-through operations the resource client needs.
// Concurrent GetOrFetch calls for one key share a single fetch.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error)
	Peek(key string) (any, bool)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	InvalidateKeys(ctx context.Context, keys []string) error
	Keys() []string
	Size() int
}

// GetOrFetch is a type-safe wrapper around CacheService.GetOrFetch.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T

	result, err := service.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return assertResult[T](key, result)
}

// Peek returns the cached value for key without fetching.
func Peek[T any](service CacheService, key string) (T, bool, error) {
	var zero T

	result, ok := service.Peek(key)
	if !ok {
		return zero, false, nil
	}
	value, err := assertResult[T](key, result)
	if err != nil {
		return zero, false, err
	}
	return value, true, nil
}

func assertResult[T any](key string, result any) (T, error) {
	var zero T
	if result == nil {
		// a nil interface is how a zero pointer/slice/map result comes back
		return zero, nil
	}
	value, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T, want %T", ErrInvalidResultType, key, result, zero)
	}
	return value, nil
}
