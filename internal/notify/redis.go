package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/Shivanand-hulikatti/campus-events/internal/config"
)

// RedisNotifier publishes notifications on Redis pub/sub channels named after the topic.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(cfg config.RedisConfig) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return &RedisNotifier{client: client}, nil
}

// NewRedisNotifierFromClient wraps an existing client.
func NewRedisNotifierFromClient(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Publish sends msg as JSON on the topic channel.
func (n *RedisNotifier) Publish(ctx context.Context, topic string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification")
	}
	if err := n.client.Publish(ctx, topic, data).Err(); err != nil {
		return errors.Wrapf(err, "failed to publish on %s", topic)
	}
	return nil
}

// Subscribe returns a subscription on the given topics; callers must Close it.
func (n *RedisNotifier) Subscribe(ctx context.Context, topics ...string) *redis.PubSub {
	return n.client.Subscribe(ctx, topics...)
}

// Close closes the Redis connection.
func (n *RedisNotifier) Close() error {
	if n.client == nil {
		return nil
	}
	return n.client.Close()
}
