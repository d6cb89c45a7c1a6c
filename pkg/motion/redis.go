package motion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher is the subset of the Redis client used to send commands.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisCommander publishes Twist commands on a Redis channel.
type RedisCommander struct {
	client  Publisher
	channel string
	limits  Limits
}

// NewRedisCommander creates a commander publishing on channel.
func NewRedisCommander(client Publisher, channel string, limits Limits) *RedisCommander {
	return &RedisCommander{client: client, channel: channel, limits: limits}
}

// Command publishes one velocity command.
func (c *RedisCommander) Command(ctx context.Context, linear, angular float64) error {
	data, err := json.Marshal(c.limits.Twist(linear, angular))
	if err != nil {
		return fmt.Errorf("failed to marshal twist: %w", err)
	}
	if err := c.client.Publish(ctx, c.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", c.channel, err)
	}
	return nil
}
