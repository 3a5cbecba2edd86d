package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/accounts/internal/config"
	"github.com/congo-pay/accounts/internal/docstore"
	"github.com/congo-pay/accounts/internal/docstore/memory"
	"github.com/congo-pay/accounts/internal/docstore/pgstore"
	"github.com/congo-pay/accounts/internal/docstore/redisstore"
)

// OpenDocumentStore connects the configured backend once and returns the
// shared handle. Postgres schemas are migrated before the handle is returned.
func OpenDocumentStore(ctx context.Context, driver, location string, logger *slog.Logger) (docstore.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch driver {
	case config.DriverPostgres:
		pool, err := NewPostgresPool(ctx, location)
		if err != nil {
			return nil, err
		}
		store := pgstore.Open(pool)
		if err := store.Migrate(ctx, logger); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverRedis:
		client, err := NewRedisClient(ctx, location)
		if err != nil {
			return nil, err
		}
		return redisstore.New(client), nil
	case config.DriverMemory:
		logger.Warn("using in-memory document store; data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported document store driver %q", driver)
	}
}
