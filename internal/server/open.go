package server

import (
	"context"
	"fmt"

	"github.com/chunkvault/chunkvault/internal/config"
	"github.com/chunkvault/chunkvault/internal/database"
	"github.com/chunkvault/chunkvault/pkg/logger"
)

const mongoConnectAttempts = 5

// OpenStores connects the configured storage driver. The returned func
// releases the connection.
func OpenStores(ctx context.Context, cfg *config.Config) (Stores, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoConnectAttempts)
		if err != nil {
			return Stores{}, nil, err
		}
		logger.Infof("storage: mongo database %s", cfg.MongoDB.Database)
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return MongoStores(client.Database(cfg.MongoDB.Database)), closeFn, nil

	case config.DriverPostgres:
		db, err := database.OpenPostgres(ctx, cfg.Postgres.DSN, database.PostgresOptions{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return Stores{}, nil, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := database.RunMigrations(ctx, db); err != nil {
				_ = db.Close()
				return Stores{}, nil, fmt.Errorf("auto migrate: %w", err)
			}
			logger.Infof("storage: postgres migrations applied")
		}
		return PostgresStores(db), func() { _ = db.Close() }, nil

	case config.DriverMemory:
		logger.Warnf("storage: in-memory driver, data is lost on restart")
		return MemoryStores(), func() {}, nil
	}
	return Stores{}, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
