package usecase

import (
	"context"
	"encoding/json"
	"time"

	"chat-bridge/internal/entity"
	"chat-bridge/internal/ports"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) SyncAccount(ctx context.Context, email, password string) (*entity.Account, error) {
	args := m.Called(ctx, email, password)
	account, _ := args.Get(0).(*entity.Account)

	return account, args.Error(1)
}

func (m *MockStore) SaveBrowserSession(ctx context.Context, sessionID, siteName string, accountEmail *string, state json.RawMessage) error {
	return m.Called(ctx, sessionID, siteName, accountEmail, state).Error(0)
}

func (m *MockStore) GetBrowserSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	args := m.Called(ctx, sessionID)
	state, _ := args.Get(0).(json.RawMessage)

	return state, args.Error(1)
}

func (m *MockStore) SaveMessage(ctx context.Context, sessionID, chatID string, role entity.Role, content string, imageURL *string) error {
	return m.Called(ctx, sessionID, chatID, role, content, imageURL).Error(0)
}

func (m *MockStore) GetChat(ctx context.Context, chatID string) (*entity.Chat, error) {
	args := m.Called(ctx, chatID)
	c, _ := args.Get(0).(*entity.Chat)

	return c, args.Error(1)
}

func (m *MockStore) RenameChat(ctx context.Context, oldID, newID string) error {
	return m.Called(ctx, oldID, newID).Error(0)
}

func (m *MockStore) DeleteChat(ctx context.Context, chatID string) error {
	return m.Called(ctx, chatID).Error(0)
}

func (m *MockStore) ListChats(ctx context.Context, limit, offset int) ([]entity.Chat, error) {
	args := m.Called(ctx, limit, offset)
	chats, _ := args.Get(0).([]entity.Chat)

	return chats, args.Error(1)
}

func (m *MockStore) ListMessages(ctx context.Context, chatID string) ([]entity.Message, error) {
	args := m.Called(ctx, chatID)
	messages, _ := args.Get(0).([]entity.Message)

	return messages, args.Error(1)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockProvider) NewPage(ctx context.Context) (ports.Page, error) {
	args := m.Called(ctx)
	page, _ := args.Get(0).(ports.Page)

	return page, args.Error(1)
}

func (m *MockProvider) SaveState(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	state, _ := args.Get(0).(json.RawMessage)

	return state, args.Error(1)
}

func (m *MockProvider) LoadState(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockProvider) ApplyState(ctx context.Context, state json.RawMessage) error {
	return m.Called(ctx, state).Error(0)
}

func (m *MockProvider) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// stubPage only records Close; login is replaced in tests.
type stubPage struct {
	ports.Page
	closed bool
}

func (p *stubPage) Close() error {
	p.closed = true

	return nil
}

// scriptedConversation plays back fixed results for one turn.
type scriptedConversation struct {
	opened    []string
	sent      []entity.SubmissionRequest
	urlID     func(opened string, sent bool) (string, bool)
	sendOK    bool
	sendErr   error
	done      bool
	awaitErr  error
	reply     entity.ExtractedReply
	replyErr  error
	openErr   error
	timeoutIn time.Duration

	onSend   func()
	awaitCtx error
	replyCtx error
}

func (c *scriptedConversation) Open(_ context.Context, url string) error {
	if c.openErr != nil {
		return c.openErr
	}

	c.opened = append(c.opened, url)

	return nil
}

func (c *scriptedConversation) Send(_ context.Context, req entity.SubmissionRequest) (bool, error) {
	c.sent = append(c.sent, req)
	if c.onSend != nil {
		c.onSend()
	}

	return c.sendOK, c.sendErr
}

func (c *scriptedConversation) AwaitCompletion(ctx context.Context, timeout time.Duration) (bool, error) {
	c.timeoutIn = timeout
	c.awaitCtx = ctx.Err()

	return c.done, c.awaitErr
}

func (c *scriptedConversation) LatestReply(ctx context.Context) (entity.ExtractedReply, error) {
	c.replyCtx = ctx.Err()

	return c.reply, c.replyErr
}

func (c *scriptedConversation) ConversationID() (string, bool) {
	if c.urlID == nil || len(c.opened) == 0 {
		return "", false
	}

	return c.urlID(c.opened[len(c.opened)-1], len(c.sent) > 0)
}

type fakeConversations struct {
	conv       Conversation
	acquireErr error
	released   int
	discarded  int
	closed     bool
}

func (f *fakeConversations) Acquire(context.Context) (Conversation, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}

	return f.conv, nil
}

func (f *fakeConversations) Release(Conversation) { f.released++ }

func (f *fakeConversations) Discard(Conversation) { f.discarded++ }

func (f *fakeConversations) Close() error {
	f.closed = true

	return nil
}
