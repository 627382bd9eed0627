package adapters

import (
	"chat-bridge/internal/entity"
	"context"
)

type ChatService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Turn(ctx context.Context, req entity.TurnRequest) (*entity.Turn, error)
	ListChats(ctx context.Context, limit, offset int) ([]entity.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]entity.Message, error)
	DeleteChat(ctx context.Context, chatID string) error
}

type SessionService interface {
	Establish(ctx context.Context) error
	Persist(ctx context.Context) error
	Close(ctx context.Context) error
}
