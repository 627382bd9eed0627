package bootstrap

import (
	"chat-bridge/internal/console"
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func runConsole(lc fx.Lifecycle, shutdowner fx.Shutdowner, consoleInterface *console.Interface, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting chat console...")

			go func() {
				if err := consoleInterface.Start(); err != nil {
					logger.Error("Console interface error", zap.Error(err))
				}

				if err := shutdowner.Shutdown(); err != nil {
					logger.Error("Failed to request shutdown", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := consoleInterface.Stop(); err != nil {
				logger.Error("Failed to stop console", zap.Error(err))
			}

			return nil
		},
	})
}
