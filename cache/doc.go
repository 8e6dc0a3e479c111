// Package cache provides the query cache contract and key serialization used
// by the resource client.
//
// # Overview
//
// Two interfaces are exported together with their default implementations:
//
//   - CacheService: read-through storage with in-flight de-duplication and
//     prefix deletion, backed by sturdyc
//   - KeySerializer: builds keys of the form resource::scope::op::hash
//
// # Keys
//
// The resource and scope segments are path-escaped with ':' escaped as well,
// so distinct names never share a namespace ("purchase-orders/lines" becomes
// "purchase-orders%2Flines"). Scopes are not trimmed. The trailing hash is
// the xxhash of a canonical rendering of the arguments (usually query.Params and a record id):
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("departments", "acme", cache.OpList, params.CacheKey())
//	// departments::acme::list::5c1e0f...
//
// Invalidation after a write removes every key under
// serializer.Prefix("departments", "acme"), i.e. "departments::acme::".
//
// # Reads
//
//	page, err := cache.GetOrFetch(ctx, service, key, func(ctx context.Context) (query.Page[Department], error) {
//		return fetchDepartments(ctx)
//	})
//
// Concurrent callers for the same key share one fetch. A cached value of the
// wrong type yields ErrInvalidResultType instead of a panic.
//
// # Argument rendering
//
// Maps are rendered with sorted keys, structs by exported field name, and
// pointers are followed. Functions and channels render by address and are
// therefore only stable within one process; pass plain values as arguments.
package cache
