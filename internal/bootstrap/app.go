package bootstrap

import (
	"chat-bridge/internal/browser"
	"chat-bridge/internal/config"
	"chat-bridge/internal/console"
	"chat-bridge/internal/ports"
	"chat-bridge/internal/server"
	"chat-bridge/internal/usecase"
	"chat-bridge/internal/usecase/adapters"
	"time"

	"go.uber.org/fx"
)

// core wires everything both run modes share: configuration, logging,
// tracing, the browser, storage and the chat/session services.
func core() fx.Option {
	return fx.Options(
		fx.Provide(
			config.GetConfig,
			newLogger,
			newTraceProvider,
			newDatabase,

			fx.Annotate(browser.NewManager, fx.As(new(ports.PageProvider))),
			fx.Annotate(newStore, fx.As(new(ports.ChatStore))),

			usecase.NewUsecase,
			chatService,
		),

		fx.Invoke(
			runSession,
		),

		fx.StartTimeout(2*time.Minute),
		fx.StopTimeout(30*time.Second),
	)
}

// NewServerApp runs the HTTP API.
func NewServerApp() *fx.App {
	return fx.New(serverOptions())
}

// NewConsoleApp runs the interactive REPL on stdin.
func NewConsoleApp() *fx.App {
	return fx.New(consoleOptions())
}

func serverOptions() fx.Option {
	return fx.Options(
		core(),

		fx.Provide(
			server.NewServer,
		),

		fx.Invoke(
			runServer,
		),
	)
}

func consoleOptions() fx.Option {
	return fx.Options(
		core(),

		fx.Provide(
			console.NewInterface,
		),

		fx.Invoke(
			runConsole,
		),
	)
}

func chatService(svc *usecase.Service) adapters.ChatService {
	return svc.Chat
}
