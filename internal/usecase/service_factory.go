package usecase

import (
	"chat-bridge/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateChatService() adapters.ChatService {
	return NewChatService(ChatServiceParams{
		Config:  f.deps.Config,
		Logger:  f.deps.Logger,
		Browser: f.deps.Browser,
		Store:   f.deps.Store,
	})
}

func (f *serviceFactory) CreateSessionService() adapters.SessionService {
	return NewSessionService(SessionServiceParams{
		Config:  f.deps.Config,
		Logger:  f.deps.Logger,
		Browser: f.deps.Browser,
		Store:   f.deps.Store,
	})
}
