package usecase

import (
	"chat-bridge/internal/chat"
	"chat-bridge/internal/entity"
	"context"
	"time"
)

// Conversation is the part of chat.Automaton a turn needs.
type Conversation interface {
	Open(ctx context.Context, url string) error
	Send(ctx context.Context, req entity.SubmissionRequest) (bool, error)
	AwaitCompletion(ctx context.Context, timeout time.Duration) (bool, error)
	LatestReply(ctx context.Context) (entity.ExtractedReply, error)
	ConversationID() (string, bool)
}

// Conversations hands out exclusive conversations. Discard is for ones whose
// page failed.
type Conversations interface {
	Acquire(ctx context.Context) (Conversation, error)
	Release(c Conversation)
	Discard(c Conversation)
	Close() error
}

type automatonPool struct {
	pool *chat.Pool
}

func (p automatonPool) Acquire(ctx context.Context) (Conversation, error) {
	a, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (p automatonPool) Release(c Conversation) {
	if a, ok := c.(*chat.Automaton); ok {
		p.pool.Release(a)
	}
}

func (p automatonPool) Discard(c Conversation) {
	a, _ := c.(*chat.Automaton)
	p.pool.Discard(a)
}

func (p automatonPool) Close() error {
	return p.pool.Close()
}
