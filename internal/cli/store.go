package cli

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/mnemo/internal/config"
	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// openStore connects to the configured backend and brings its schema up to
// date. The returned func releases the connection.
func openStore(ctx context.Context, logger *zap.Logger) (domain.MemoryStore, func(), error) {
	switch driver := config.StoreDriver(); driver {
	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		if err := store.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("connected to database", zap.String("driver", driver))
		return store.NewMemoryStore(pool), pool.Close, nil

	case "sqlite":
		path := config.SQLitePath()
		s, err := store.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened database", zap.String("driver", driver), zap.String("path", path))
		return s, func() { _ = s.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q (valid options: postgres, sqlite)", driver)
	}
}
