package resourcecache

import (
	"context"
	"net/http"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/goliatone/go-resource-cache/apierror"
	"github.com/goliatone/go-resource-cache/session"
	"github.com/goliatone/go-resource-cache/transport"
)

// MutationOp names a write.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpPatch  MutationOp = "patch"
	OpDelete MutationOp = "delete"
)

func (op MutationOp) method() string {
	switch op {
	case OpCreate:
		return http.MethodPost
	case OpUpdate:
		return http.MethodPut
	case OpPatch:
		return http.MethodPatch
	case OpDelete:
		return http.MethodDelete
	}
	return ""
}

func (op MutationOp) needsID() bool {
	return op != OpCreate
}

// MutationStatus is the lifecycle of one write:
// idle -> pending -> success -> invalidated, or pending -> idle on failure.
type MutationStatus string

const (
	StatusIdle        MutationStatus = "idle"
	StatusPending     MutationStatus = "pending"
	StatusSuccess     MutationStatus = "success"
	StatusInvalidated MutationStatus = "invalidated"
)

// Mutation runs writes of one kind against a resource and exposes the state
// of the latest one. It never retries and never touches the cache on failure.
type Mutation[T any] struct {
	client *Client[T]
	op     MutationOp

	mu     sync.RWMutex
	status MutationStatus
	err    error
	result T
}

// Mutation returns a new idle mutation for op.
func (c *Client[T]) Mutation(op MutationOp) *Mutation[T] {
	return &Mutation[T]{client: c, op: op, status: StatusIdle}
}

// Create posts payload to the collection.
func (c *Client[T]) Create(ctx context.Context, sess session.Session, payload any) (T, error) {
	return c.Mutation(OpCreate).Execute(ctx, sess, "", payload)
}

// Update replaces the record id with payload.
func (c *Client[T]) Update(ctx context.Context, sess session.Session, id string, payload any) (T, error) {
	return c.Mutation(OpUpdate).Execute(ctx, sess, id, payload)
}

// Patch partially updates the record id.
func (c *Client[T]) Patch(ctx context.Context, sess session.Session, id string, payload any) (T, error) {
	return c.Mutation(OpPatch).Execute(ctx, sess, id, payload)
}

// Delete removes the record id.
func (c *Client[T]) Delete(ctx context.Context, sess session.Session, id string) error {
	_, err := c.Mutation(OpDelete).Execute(ctx, sess, id, nil)
	return err
}

// Execute performs the write. On success every cached read of the resource
// and its dependents in the session scope is invalidated before Execute
// returns, so the next read observes the committed state.
func (m *Mutation[T]) Execute(ctx context.Context, sess session.Session, id string, payload any) (T, error) {
	var zero T

	m.mu.Lock()
	if m.status == StatusPending {
		m.mu.Unlock()
		return zero, apierror.Precondition(string(m.op) + " " + m.client.def.Name + " already pending")
	}
	m.status = StatusPending
	m.err = nil
	m.result = zero
	m.mu.Unlock()

	result, committed, err := m.client.mutate(ctx, sess, m.op, id, payload)
	if committed {
		m.setStatus(StatusSuccess, result, nil)
		m.client.invalidateAfterWrite(ctx, sess.Scope)
		if err == nil {
			m.setStatus(StatusInvalidated, result, nil)
			return result, nil
		}
	}

	m.setStatus(StatusIdle, zero, err)
	return zero, err
}

func (m *Mutation[T]) setStatus(status MutationStatus, result T, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.result = result
	m.err = err
}

// Status reports the lifecycle state of the latest write.
func (m *Mutation[T]) Status() MutationStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Err returns the failure of the latest write, if any.
func (m *Mutation[T]) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Result returns the record returned by the latest successful write.
func (m *Mutation[T]) Result() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result
}

// Reset returns an idle mutation to its initial state.
func (m *Mutation[T]) Reset() {
	var zero T
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusPending {
		m.status, m.err, m.result = StatusIdle, nil, zero
	}
}

// mutate sends the write. committed reports whether the backend accepted it,
// which may be true even when decoding the response failed.
func (c *Client[T]) mutate(ctx context.Context, sess session.Session, op MutationOp, id string, payload any) (result T, committed bool, err error) {
	name := c.def.Name
	method := op.method()
	if method == "" {
		return result, false, apierror.Precondition("unknown write " + string(op) + " for " + name)
	}
	if !sess.Ready() {
		return result, false, apierror.Precondition(
			"missing " + strings.Join(sess.Missing(), " and ") + " for " + name)
	}
	if op.needsID() && strings.TrimSpace(id) == "" {
		return result, false, apierror.Precondition("missing id for " + string(op) + " " + name)
	}
	if op != OpDelete && payload == nil {
		return result, false, apierror.Precondition("missing payload for " + string(op) + " " + name)
	}
	if v, ok := payload.(validation.Validatable); ok {
		if verr := v.Validate(); verr != nil {
			return result, false, apierror.Wrap(verr, apierror.KindValidation, 0, "invalid "+name+": "+verr.Error())
		}
	}

	url, err := c.resolver.Resolve(c.def.Route(), sess.Scope, name, id)
	if err != nil {
		return result, false, err
	}

	resp, err := c.doer.Do(ctx, transport.Request{
		Method:   method,
		URL:      url,
		Session:  sess,
		Body:     payload,
		Resource: name,
	})
	c.store.recorder.ObserveMutation(name, string(op), err == nil)
	if err != nil {
		c.store.logger.Debug("write failed",
			zap.String("resource", name),
			zap.String("op", string(op)),
			zap.String("kind", string(apierror.KindOf(err))))
		return result, false, err
	}

	if op == OpDelete {
		return result, true, nil
	}
	result, err = transport.DecodeRecord[T](resp)
	return result, true, err
}

func (c *Client[T]) invalidateAfterWrite(ctx context.Context, scope string) {
	// the write is committed; a failed broadcast is logged by the store and
	// only affects other processes
	_ = c.store.invalidate(context.WithoutCancel(ctx), c.def.Name, scope, SourceMutation)
}
