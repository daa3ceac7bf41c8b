package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
)

// redisPublisher is the slice of the go-redis client used for PUBLISH.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisEventPublisher publishes detector events as JSON on one pub/sub channel.
type RedisEventPublisher struct {
	client  redisPublisher
	channel string
}

// NewRedisEventPublisher creates a publisher. The client is owned by the caller.
func NewRedisEventPublisher(client redisPublisher, channel string) *RedisEventPublisher {
	if channel == "" {
		channel = models.SubscriptionType
	}
	return &RedisEventPublisher{client: client, channel: channel}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, msg models.SubscriptionValue) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisEventPublisher) Close() error { return nil }

var _ repository.EventPublisher = (*RedisEventPublisher)(nil)
