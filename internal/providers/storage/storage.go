// Package storage persists rendered documents.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/feeflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrObjectNotFound = errors.New("object_not_found")

// Storage writes and reads documents by key. Put overwrites existing keys.
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Check verifies the backend is reachable and writable enough to start a run.
	Check(ctx context.Context) error
}

var Module = fx.Module("providers.storage",
	fx.Provide(New),
)

// New builds the storage backend selected by configuration.
func New(cfg config.Config, log *zap.Logger) (Storage, error) {
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Storage.Driver {
	case config.StorageDriverS3:
		return NewS3(cfg.Storage, log)
	case config.StorageDriverLocal:
		return NewLocal(cfg.Storage.LocalRoot)
	case config.StorageDriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidStorage, cfg.Storage.Driver)
	}
}
