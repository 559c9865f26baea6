package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/config"
)

// New selects a backend from configuration.
func New(cfg config.StorageConfig, logger *zap.Logger) (Storage, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg.Path, cfg.BusyTimeoutMs, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
