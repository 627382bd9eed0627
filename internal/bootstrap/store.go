package bootstrap

import (
	"chat-bridge/internal/config"
	"chat-bridge/internal/store"
	"chat-bridge/pkg/logg"
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pingTimeout = 10 * time.Second

func newDatabase(lc fx.Lifecycle, config *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	if config.DatabaseConfig.Migrate {
		if err := store.Migrate(config.DatabaseConfig.URL, logger.With(zap.String(logg.Layer, "Migrate"))); err != nil {
			logger.Error("Failed to apply migrations", zap.Error(err))

			return nil, err
		}
	}

	pool, err := store.Connect(context.Background(), config.DatabaseConfig)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))

		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()

			return nil
		},
	})

	return pool, nil
}

func newStore(pool *pgxpool.Pool, logger *zap.Logger) (*store.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	return store.New(ctx, pool, logger)
}
