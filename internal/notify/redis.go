package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"roomledger.org/internal/booking"
)

// DefaultChannel is the Redis pub/sub channel carrying every event. Each
// event is also published on DefaultChannel + ":" + property id.
const DefaultChannel = "roomledger:events"

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events on Redis pub/sub channels.
type RedisPublisher struct {
	client  redisPublisher
	channel string
}

var _ booking.Notifier = (*RedisPublisher)(nil)

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return newRedisPublisher(client, channel)
}

func newRedisPublisher(client redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Notify(ctx context.Context, evt booking.Event) error {
	body, err := Encode(evt)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	if evt.PropertyID != "" {
		if err := p.client.Publish(ctx, p.channel+":"+evt.PropertyID, body).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
	}
	return nil
}
