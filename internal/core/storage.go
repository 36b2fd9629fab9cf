package core

import (
	"context"
	"fmt"
	"os"

	"communitycore/internal/infra/persistence/memory"
	"communitycore/internal/infra/persistence/mongo"
	"communitycore/internal/infra/persistence/postgres"
	"communitycore/internal/infra/persistence/sqlite"
	"communitycore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMongo    StorageDriver = "mongo"    // MongoDB server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to memory when unset.
//
//	COMMUNITYCORE_STORAGE_DRIVER: memory|sqlite|postgres|mongo (default memory)
//	COMMUNITYCORE_SQLITE_PATH: path to sqlite file (default ./communitycore.db)
//	COMMUNITYCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	COMMUNITYCORE_MONGO_URI / COMMUNITYCORE_MONGO_DATABASE: mongo connection when driver=mongo
func OpenPersistentStore(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv("COMMUNITYCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageMemory)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("COMMUNITYCORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("COMMUNITYCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	case StorageMongo:
		uri := os.Getenv("COMMUNITYCORE_MONGO_URI")
		database := os.Getenv("COMMUNITYCORE_MONGO_DATABASE")
		return mongo.NewStore(context.Background(), uri, database, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
