package bootstrap

import (
	"chat-bridge/internal/server"
	"chat-bridge/internal/usecase"
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runSession establishes the browser session and the automaton pool before
// any front end starts, and tears them down after it has stopped.
func runSession(lc fx.Lifecycle, svc *usecase.Service, _ trace.TracerProvider, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Establishing browser session...")

			if err := svc.Session.Establish(ctx); err != nil {
				logger.Error("Failed to establish browser session", zap.Error(err))

				return err
			}

			if err := svc.Chat.Start(ctx); err != nil {
				logger.Error("Failed to start chat automatons", zap.Error(err))

				if closeErr := svc.Session.Close(ctx); closeErr != nil {
					logger.Error("Failed to close browser", zap.Error(closeErr))
				}

				return err
			}

			logger.Info("Chat automatons ready")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down chat automatons...")

			if err := svc.Chat.Stop(ctx); err != nil {
				logger.Error("Failed to stop chat automatons", zap.Error(err))
			}

			if err := svc.Session.Persist(ctx); err != nil {
				logger.Warn("Failed to persist browser session", zap.Error(err))
			}

			if err := svc.Session.Close(ctx); err != nil {
				logger.Error("Failed to close browser", zap.Error(err))
			}

			return nil
		},
	})
}

func runServer(lc fx.Lifecycle, srv *server.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server...")

			return srv.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Error("Failed to stop HTTP server", zap.Error(err))
			}

			return nil
		},
	})
}
