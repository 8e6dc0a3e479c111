package resourcecache

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-resource-cache/metrics"
	"github.com/goliatone/go-resource-cache/query"
	"github.com/goliatone/go-resource-cache/session"
)

// State is the view a screen binds to.
type State[V any] struct {
	Data      V
	IsLoading bool
	Err       error
	// Disabled is set when the session lacks a token or scope. No request is
	// made and Err stays nil.
	Disabled  bool
	FetchedAt time.Time
}

// UseList resolves a list read into a State. A session without token or scope
// yields a disabled state without any network call.
func (c *Client[T]) UseList(ctx context.Context, sess session.Session, params query.Params) State[query.Page[T]] {
	if !sess.Ready() {
		return disabledState[query.Page[T]](c.binding)
	}
	page, at, err := c.list(ctx, sess, params)
	return State[query.Page[T]]{Data: page, Err: err, FetchedAt: at}
}

// UseRecord resolves a record read into a State. An empty id disables the
// read like a missing session does.
func (c *Client[T]) UseRecord(ctx context.Context, sess session.Session, id string) State[T] {
	if !sess.Ready() || id == "" {
		return disabledState[T](c.binding)
	}
	record, at, err := c.get(ctx, sess, id)
	return State[T]{Data: record, Err: err, FetchedAt: at}
}

// UseDocument resolves a document read into a State.
func (c *Client[T]) UseDocument(ctx context.Context, sess session.Session, params query.Params) State[T] {
	if !sess.Ready() {
		return disabledState[T](c.binding)
	}
	record, at, err := c.document(ctx, sess, params)
	return State[T]{Data: record, Err: err, FetchedAt: at}
}

// WatchList starts a list read in the background.
func (c *Client[T]) WatchList(ctx context.Context, sess session.Session, params query.Params) *Observer[query.Page[T]] {
	if !sess.Ready() {
		return resolvedObserver(disabledState[query.Page[T]](c.binding))
	}
	return watch(ctx, func(ctx context.Context) (query.Page[T], time.Time, error) {
		return c.list(ctx, sess, params)
	})
}

// WatchRecord starts a record read in the background.
func (c *Client[T]) WatchRecord(ctx context.Context, sess session.Session, id string) *Observer[T] {
	if !sess.Ready() || id == "" {
		return resolvedObserver(disabledState[T](c.binding))
	}
	return watch(ctx, func(ctx context.Context) (T, time.Time, error) {
		return c.get(ctx, sess, id)
	})
}

func disabledState[V any](b *binding) State[V] {
	b.store.recorder.ObserveLookup(b.def.Name, metrics.LookupDisabled)
	return State[V]{Disabled: true}
}

// Observer follows one background read. State reports IsLoading until the
// read resolves; Close cancels the caller's wait and drops a late result.
type Observer[V any] struct {
	mu     sync.RWMutex
	state  State[V]
	closed bool
	done   chan struct{}
	cancel context.CancelFunc
}

func watch[V any](ctx context.Context, read func(context.Context) (V, time.Time, error)) *Observer[V] {
	ctx, cancel := context.WithCancel(ctx)
	o := &Observer[V]{
		state:  State[V]{IsLoading: true},
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(o.done)
		defer cancel()

		data, at, err := read(ctx)

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed {
			return
		}
		o.state = State[V]{Data: data, Err: err, FetchedAt: at}
	}()
	return o
}

func resolvedObserver[V any](state State[V]) *Observer[V] {
	o := &Observer[V]{state: state, done: make(chan struct{}), cancel: func() {}}
	close(o.done)
	return o
}

// State returns a snapshot of the read.
func (o *Observer[V]) State() State[V] {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Done is closed once the read resolved or was abandoned.
func (o *Observer[V]) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the read resolves or ctx is done and returns the state.
func (o *Observer[V]) Wait(ctx context.Context) State[V] {
	select {
	case <-o.done:
	case <-ctx.Done():
	}
	return o.State()
}

// Close abandons the read. The state stops loading and keeps no late result.
func (o *Observer[V]) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.state.IsLoading = false
	o.mu.Unlock()
	o.cancel()
}

// Closed reports whether Close was called.
func (o *Observer[V]) Closed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}
