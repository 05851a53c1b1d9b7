package core

import (
	"context"
	"fmt"
	"io"

	"carerules/internal/config"
	"carerules/internal/infra/persistence/badger"
	"carerules/internal/infra/persistence/memory"
	"carerules/internal/infra/persistence/postgres"
	"carerules/internal/infra/persistence/redis"
	"carerules/internal/infra/persistence/sqlite"
	"carerules/internal/log"
	"carerules/pkg/domain"
)

// StorageDriver identifies a concrete repository implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = config.StorageMemory   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = config.StorageSQLite   // embedded sqlite file
	StoragePostgres StorageDriver = config.StoragePostgres // PostgreSQL server
	StorageBadger   StorageDriver = config.StorageBadger   // embedded badger directory, in-memory when unset
	StorageRedis    StorageDriver = config.StorageRedis    // Redis server
)

// Repository is a domain.Repository that may hold resources.
type Repository interface {
	domain.Repository
	io.Closer
}

type nopCloser struct{ domain.Repository }

func (nopCloser) Close() error { return nil }

// OpenRepository selects a repository backend from configuration. An empty
// driver selects sqlite.
func OpenRepository(ctx context.Context, cfg config.Config) (Repository, error) {
	driver := StorageDriver(cfg.StorageDriver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return nopCloser{memory.NewStore()}, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageBadger:
		store, err := badger.NewStore(cfg.BadgerDir, badger.WithLogger(log.WithComponent("badger")))
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageRedis:
		store, err := redis.NewStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
