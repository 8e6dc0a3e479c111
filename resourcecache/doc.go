// Package resourcecache binds backend resources to a process-wide query
// cache.
//
// A Store holds the cache shared by all resources. A Client[T] reads and
// writes one resource described by a registry.Definition:
//
//	store := resourcecache.NewStore(svc, resourcecache.WithRegistry(registry.Default()))
//	def, _ := registry.Default().Lookup("departments")
//	departments, _ := resourcecache.NewClient[catalog.Department](store, executor, resolver, def)
//
//	page, err := departments.List(ctx, sess, query.Params{Search: "ops", Page: query.Int(2), PerPage: query.Int(10)})
//
// # Reads
//
// Reads are keyed by resource, scope, operation and parameters. Concurrent
// identical reads share one request. A cached read younger than the
// resource's stale time is returned without a request; an older one is
// fetched again before returning. Retryable failures (server, transport,
// timeout, rate limit) are retried under the resource's retry policy inside
// the shared request.
//
// List and Get return a precondition error when the session has no token or
// scope. UseList, UseRecord and the Watch variants return a disabled State
// instead and make no request.
//
// # Writes
//
// Create, Update, Patch and Delete never retry. After a successful write every
// cached read of the resource in the session scope is dropped, together with
// the reads of resources that declare a dependency on it, and the
// invalidation is published to the store's broadcaster. A read that was in
// flight when the invalidation happened is fetched again rather than cached.
package resourcecache
