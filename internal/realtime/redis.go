package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/redis/go-redis/v9"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
)

// RedisBackplane fans events out over a redis pub/sub channel
type RedisBackplane struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
}

// OpenRedisBackplane connects to redis and verifies the connection
func OpenRedisBackplane(ctx context.Context, cfg config.RedisBus) (*RedisBackplane, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisBackplane(rdb, cfg.Channel), nil
}

// NewRedisBackplane wraps an existing client
func NewRedisBackplane(client *redis.Client, channel string) *RedisBackplane {
	return &RedisBackplane{client: client, channel: channel}
}

// Publish sends payload on the channel
func (b *RedisBackplane) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe delivers channel messages to handler
func (b *RedisBackplane) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.pubsub = pubsub

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	logging.Infow(ctx, "Subscribed to redis alert channel", "channel", b.channel)
	return nil
}

// Close closes the subscription and client
func (b *RedisBackplane) Close() error {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	return b.client.Close()
}
