package usecase

import (
	"chat-bridge/internal/config"
	"chat-bridge/internal/ports"
	"chat-bridge/internal/usecase/adapters"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	Chat    adapters.ChatService
	Session adapters.SessionService
}

type Params struct {
	fx.In

	Logger  *zap.Logger
	Config  *config.Config
	Browser ports.PageProvider
	Store   ports.ChatStore
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Chat:    factory.CreateChatService(),
		Session: factory.CreateSessionService(),
	}
}
