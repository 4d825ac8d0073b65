package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher broadcasts events on a redis pub/sub topic so other
// processes (audit collectors, session invalidators) can react to
// credential lifecycle changes.
type RedisPublisher struct {
	logger *zap.Logger
	filter *filter
	client *redis.Client
	topic  string
}

// NewRedisPublisher verifies connectivity before returning.
func NewRedisPublisher(logger *zap.Logger, client *redis.Client, topic string, eventTypes []string) (*RedisPublisher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if topic == "" {
		topic = "authgrid:events"
	}
	return &RedisPublisher{
		logger: logger.Named("events.redis"),
		filter: newFilter(eventTypes),
		client: client,
		topic:  topic,
	}, nil
}

func (p *RedisPublisher) Publish(event Event) {
	if !p.filter.allows(event.Type) {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.topic, payload).Err(); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
