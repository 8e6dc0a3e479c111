package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultChannel is the Pub/Sub channel used when none is configured.
	DefaultChannel = "resource-cache:invalidations"

	defaultCloseTimeout = 5 * time.Second
)

// RedisConfig addresses the Redis server.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisBroadcaster publishes msgpack encoded messages over Redis Pub/Sub.
type RedisBroadcaster struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	logger     *zap.Logger

	mu       sync.Mutex
	running  bool
	cancelFn context.CancelFunc
	doneCh   chan struct{}
}

// RedisOption configures a RedisBroadcaster.
type RedisOption func(*RedisBroadcaster)

// WithChannel sets the Pub/Sub channel.
func WithChannel(channel string) RedisOption {
	return func(b *RedisBroadcaster) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) RedisOption {
	return func(b *RedisBroadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, opts ...RedisOption) (*RedisBroadcaster, error) {
	if cfg.Addr == "" {
		return nil, errors.New("invalidation: redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("invalidation: connect to redis: %w", err)
	}

	b := newRedis(client, true, append([]RedisOption{WithChannel(cfg.Channel)}, opts...)...)
	return b, nil
}

// NewRedisWithClient uses an existing client. The caller keeps ownership of it.
func NewRedisWithClient(client *redis.Client, opts ...RedisOption) *RedisBroadcaster {
	return newRedis(client, false, opts...)
}

func newRedis(client *redis.Client, owns bool, opts ...RedisOption) *RedisBroadcaster {
	b := &RedisBroadcaster{
		client:     client,
		ownsClient: owns,
		channel:    DefaultChannel,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Channel returns the Pub/Sub channel in use.
func (b *RedisBroadcaster) Channel() string {
	return b.channel
}

// Publish sends msg to every subscriber.
func (b *RedisBroadcaster) Publish(ctx context.Context, msg Message) error {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("invalidation: encode message: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("publishing invalidation failed",
			zap.String("channel", b.channel),
			zap.Error(err))
		return fmt.Errorf("invalidation: publish: %w", err)
	}

	b.logger.Debug("published invalidation",
		zap.String("channel", b.channel),
		zap.String("scope", msg.Scope),
		zap.Strings("resources", msg.Resources))
	return nil
}

// Subscribe blocks delivering messages to handler. Only one subscription per
// broadcaster may run at a time.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("invalidation: subscription already running")
	}
	subCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancelFn = cancel
	b.doneCh = make(chan struct{})
	done := b.doneCh
	b.mu.Unlock()

	defer func() {
		cancel()
		b.mu.Lock()
		b.running = false
		b.cancelFn = nil
		b.mu.Unlock()
		close(done)
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("invalidation: subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("subscribed to invalidation channel", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("invalidation subscription stopped", zap.String("channel", b.channel))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		case raw, ok := <-ch:
			if !ok {
				b.logger.Warn("invalidation channel closed", zap.String("channel", b.channel))
				return nil
			}
			msg, err := Decode([]byte(raw.Payload))
			if err != nil {
				b.logger.Warn("dropping undecodable invalidation", zap.Error(err))
				continue
			}
			b.deliver(subCtx, handler, msg)
		}
	}
}

// deliver runs handler, isolating the subscription loop from its panics.
func (b *RedisBroadcaster) deliver(ctx context.Context, handler Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("invalidation handler panicked", zap.Any("panic", r))
		}
	}()
	handler(ctx, msg)
}

// Close stops a running subscription and closes the client if it was
// created by NewRedis.
func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	cancel, done := b.cancelFn, b.doneCh
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("timeout waiting for invalidation subscription to stop")
		}
	}

	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}
