// Package relay fans invalidation signals out across server processes that
// share one store, using Redis Pub/Sub.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"checklist/api/internal/metrics"
)

const updateMessage = "update"

// Local is the in-process broadcaster a relay feeds.
type Local interface {
	NotifyAll() int
}

// RedisRelay publishes one message per committed mutation. Every process,
// the publisher included, notifies its own observers when the message comes
// back on the subscription.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Local
	logger  *zap.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRedisRelay connects to redisURL and verifies the connection.
func NewRedisRelay(redisURL, channel string, local Local, logger *zap.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisRelayWithClient(client, channel, local, logger), nil
}

// NewRedisRelayWithClient creates a relay from an existing Redis client
func NewRedisRelayWithClient(client *redis.Client, channel string, local Local, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.Named("relay"),
		ready:   make(chan struct{}),
	}
}

// Notify publishes the update. When Redis is unreachable the local
// observers are notified directly so this process never misses its own
// commits; other processes miss that signal. Until the subscription is
// confirmed the published message cannot come back, so local observers are
// notified directly then as well.
func (r *RedisRelay) Notify(ctx context.Context) {
	subscribed := r.subscribed()
	if err := r.client.Publish(ctx, r.channel, updateMessage).Err(); err != nil {
		metrics.RelayPublishFailures.Inc()
		r.logger.Warn("publish failed, notifying locally", zap.String("channel", r.channel), zap.Error(err))
		r.local.NotifyAll()
		return
	}
	if !subscribed {
		r.local.NotifyAll()
	}
}

// Ready is closed once the subscription is confirmed by Redis.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// WaitReady blocks until the subscription is confirmed or ctx is done.
func (r *RedisRelay) WaitReady(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for relay subscription: %w", ctx.Err())
	}
}

func (r *RedisRelay) subscribed() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Run subscribes and forwards every message to the local broadcaster until
// ctx is done. go-redis re-subscribes on its own after a dropped connection;
// messages published meanwhile are lost, so every re-subscription is passed
// on as one signal and observers re-fetch.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	messages := sub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			switch msg := raw.(type) {
			case *redis.Subscription:
				if msg.Kind == "subscribe" {
					r.logger.Info("relay re-subscribed", zap.String("channel", r.channel))
					r.local.NotifyAll()
				}
			case *redis.Message:
				if msg.Payload != updateMessage {
					r.logger.Debug("ignoring relay message", zap.String("payload", msg.Payload))
					continue
				}
				r.local.NotifyAll()
			}
		}
	}
}

// Close closes the Redis connection
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
