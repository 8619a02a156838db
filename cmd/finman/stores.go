package main

import (
	"context"
	"fmt"

	"finman/internal/api/handlers"
	"finman/internal/dialog"
	"finman/internal/repository"
	"finman/internal/service"
	"finman/pkg/config"
	"finman/pkg/postgres"

	"go.uber.org/zap"
)

type expenseStore interface {
	dialog.ExpenseStore
	handlers.ExpenseLister
}

// stores are the repositories of the configured backend, migrated and ready.
type stores struct {
	expenses expenseStore
	users    service.UserStore
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Storage.Driver {
	case repository.DriverPostgres:
		pool, err := postgres.NewPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if err := repository.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{
			expenses: repository.NewExpenseRepository(pool, logger),
			users:    repository.NewUserRepository(pool, logger),
			close:    pool.Close,
		}, nil

	case repository.DriverSQLite:
		db, err := repository.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		logger.Info("SQLite database opened", zap.String("path", cfg.Storage.SQLitePath))
		return &stores{
			expenses: repository.NewSQLiteExpenseRepository(db, logger),
			users:    repository.NewSQLiteUserRepository(db, logger),
			close:    func() { _ = db.Close() },
		}, nil

	case repository.DriverMongo:
		client, err := repository.ConnectMongo(ctx, cfg.Storage.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Storage.MongoDB)
		if err := repository.MigrateMongo(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info("MongoDB connection established", zap.String("database", cfg.Storage.MongoDB))
		return &stores{
			expenses: repository.NewMongoExpenseRepository(db, logger),
			users:    repository.NewMongoUserRepository(db, logger),
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
