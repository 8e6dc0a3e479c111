package resourcecache

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-resource-cache/apierror"
	"github.com/goliatone/go-resource-cache/cache"
	"github.com/goliatone/go-resource-cache/endpoint"
	"github.com/goliatone/go-resource-cache/query"
	"github.com/goliatone/go-resource-cache/registry"
	"github.com/goliatone/go-resource-cache/session"
	"github.com/goliatone/go-resource-cache/transport"
)

// OpDocument keys reads of a collection URL that returns a single document,
// such as a dashboard summary.
const OpDocument = "document"

// Doer executes backend requests. *transport.Executor implements it.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// binding is the non generic part of a client.
type binding struct {
	store    *Store
	def      registry.Definition
	resolver *endpoint.Resolver
	doer     Doer
}

// Client reads and writes one resource. T is the record type; lists decode
// into query.Page[T]. A Client is safe for concurrent use.
type Client[T any] struct {
	*binding
}

// NewClient builds a client for def. Every client created from the same
// store shares its cache. Clients of one resource built over different
// record types read separate entries but are invalidated together.
func NewClient[T any](store *Store, doer Doer, resolver *endpoint.Resolver, def registry.Definition) (*Client[T], error) {
	if err := def.Validate(); err != nil {
		return nil, apierror.Wrap(err, apierror.KindPrecondition, 0, "invalid resource definition "+def.Name)
	}
	return &Client[T]{binding: &binding{
		store:    store,
		def:      def,
		resolver: resolver,
		doer:     doer,
	}}, nil
}

// Definition returns the resource definition.
func (c *Client[T]) Definition() registry.Definition {
	return c.def
}

// List returns one page of the collection. Identical params in the same scope
// share one cached result.
func (c *Client[T]) List(ctx context.Context, sess session.Session, params query.Params) (query.Page[T], error) {
	page, _, err := c.list(ctx, sess, params)
	return page, err
}

func (c *Client[T]) list(ctx context.Context, sess session.Session, params query.Params) (query.Page[T], time.Time, error) {
	return lookup(ctx, c.binding, sess, cache.OpList, []any{params.CacheKey()}, func(ctx context.Context) (query.Page[T], error) {
		url, err := c.resolver.Collection(c.def.Route(), sess.Scope, c.def.Name)
		if err != nil {
			return query.Page[T]{}, err
		}
		resp, err := c.doer.Do(ctx, transport.Request{
			Method:   http.MethodGet,
			URL:      url,
			Session:  sess,
			Query:    params.Values(),
			Resource: c.def.Name,
		})
		if err != nil {
			return query.Page[T]{}, err
		}
		return transport.DecodeJSON[query.Page[T]](resp)
	})
}

// Get returns one record by id.
func (c *Client[T]) Get(ctx context.Context, sess session.Session, id string) (T, error) {
	record, _, err := c.get(ctx, sess, id)
	return record, err
}

func (c *Client[T]) get(ctx context.Context, sess session.Session, id string) (T, time.Time, error) {
	if strings.TrimSpace(id) == "" {
		var zero T
		return zero, time.Time{}, apierror.Precondition("missing id for " + c.def.Name)
	}
	return lookup(ctx, c.binding, sess, cache.OpRecord, []any{id}, func(ctx context.Context) (T, error) {
		return c.fetchRecord(ctx, sess, id, nil)
	})
}

// Document reads the collection URL as a single document, for endpoints
// such as a dashboard summary that return one object.
func (c *Client[T]) Document(ctx context.Context, sess session.Session, params query.Params) (T, error) {
	record, _, err := c.document(ctx, sess, params)
	return record, err
}

func (c *Client[T]) document(ctx context.Context, sess session.Session, params query.Params) (T, time.Time, error) {
	return lookup(ctx, c.binding, sess, OpDocument, []any{params.CacheKey()}, func(ctx context.Context) (T, error) {
		return c.fetchRecord(ctx, sess, "", params.Values())
	})
}

func (c *Client[T]) fetchRecord(ctx context.Context, sess session.Session, id string, values map[string][]string) (T, error) {
	var zero T
	url, err := c.resolver.Resolve(c.def.Route(), sess.Scope, c.def.Name, id)
	if err != nil {
		return zero, err
	}
	resp, err := c.doer.Do(ctx, transport.Request{
		Method:   http.MethodGet,
		URL:      url,
		Session:  sess,
		Query:    values,
		Resource: c.def.Name,
	})
	if err != nil {
		return zero, err
	}
	return transport.DecodeRecord[T](resp)
}

// Invalidate drops every cached read of this resource and its dependents in
// scope.
func (c *Client[T]) Invalidate(ctx context.Context, scope string) error {
	return c.store.Invalidate(ctx, c.def.Name, scope)
}
