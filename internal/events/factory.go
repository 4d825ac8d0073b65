package events

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/authgrid/authgrid/internal/common/config"
)

// NewPublisher builds the publisher named by the configuration. A
// disabled bus yields a NopPublisher so callers never nil-check.
func NewPublisher(logger *zap.Logger, cfg *config.EventsConfig) (Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return NopPublisher{}, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryPublisher(logger, cfg.EventTypes), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisPublisher(logger, client, cfg.Topic, cfg.EventTypes)
	default:
		return nil, fmt.Errorf("unknown events backend: %s", cfg.Backend)
	}
}
