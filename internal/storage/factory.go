package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/authgrid/authgrid/internal/common/config"
)

// NewStore creates a store based on configuration
func NewStore(logger *zap.Logger, cfg *config.StorageConfig) (Store, error) {
	logger.Info("Initializing storage", zap.String("type", cfg.Type))
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.DB)
	case "sqlite":
		return NewSQLiteStore(&cfg.Database)
	case "mysql":
		return NewMySQLStore(&cfg.Database)
	case "postgres":
		return NewPostgresStore(&cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
