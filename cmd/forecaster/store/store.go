// Package store selects the snapshot and model store backend from
// configuration.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/plugcast/cmd/forecaster/config"
	"github.com/HatiCode/plugcast/pkg/storage"
)

// Backend is a storage.Store that owns resources released on shutdown.
type Backend interface {
	storage.Store
	Close() error
}

// New creates the configured backend. In-memory entries and Redis keys both
// expire after CacheTTL.
func New(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using Redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.CacheTTL,
		)
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return rs, nil

	case "memory", "":
		logger.Info("using in-memory storage", "ttl", cfg.CacheTTL)
		return storage.NewMemoryStoreWithTTL(cfg.CacheTTL, 0), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
