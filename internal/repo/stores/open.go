// Package stores selects a state store backend from configuration.
package stores

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/file"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
)

func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (repo.StateStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("state_store_open", zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case "memory":
		log.Warn("state_store_not_durable", zap.String("driver", cfg.Driver))
		return memory.New(), nil
	case "file", "":
		return file.Open(cfg.Path, log)
	case "sqlite":
		return sqlite.New(ctx, cfg.Path)
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseURL, log)
	default:
		return nil, &repo.StorageError{Op: "open", Err: fmt.Errorf("unknown driver %q", cfg.Driver)}
	}
}
