// Package invalidation spreads cache invalidations between processes that
// read the same backend, so a write made through one process evicts the
// matching entries everywhere.
package invalidation

import (
	"context"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Message announces that every cached read of Resources in Scope is stale.
// An empty Scope means every scope.
type Message struct {
	Origin    string    `msgpack:"origin"`
	Scope     string    `msgpack:"scope"`
	Resources []string  `msgpack:"resources"`
	At        time.Time `msgpack:"at"`
}

// Encode serializes m for the wire.
func (m Message) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode parses a wire payload.
func Decode(data []byte) (Message, error) {
	var m Message
	err := msgpack.Unmarshal(data, &m)
	return m, err
}

// Handler receives messages published by any process, including the
// subscriber's own. Receivers skip their own Origin.
type Handler func(ctx context.Context, msg Message)

// Broadcaster publishes and delivers invalidation messages.
type Broadcaster interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe blocks, delivering messages to handler until ctx is done or
	// the broadcaster is closed.
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// Noop drops every message. It is the default for a single process.
type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }

func (Noop) Subscribe(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (Noop) Close() error { return nil }

// Local fans messages out to subscribers in the same process.
type Local struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	closed   chan struct{}
	once     sync.Once
}

// NewLocal creates an in-process broadcaster.
func NewLocal() *Local {
	return &Local{
		handlers: make(map[int]Handler),
		closed:   make(chan struct{}),
	}
}

// Publish delivers msg synchronously to every current subscriber.
func (l *Local) Publish(ctx context.Context, msg Message) error {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	l.mu.RLock()
	handlers := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
	return nil
}

// Subscribe registers handler until ctx is done or Close is called.
func (l *Local) Subscribe(ctx context.Context, handler Handler) error {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = handler
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closed:
		return nil
	}
}

// Subscribers reports the number of active subscriptions.
func (l *Local) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

// Close ends every subscription.
func (l *Local) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
