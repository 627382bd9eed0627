package ports

import (
	"chat-bridge/internal/entity"
	"context"
	"encoding/json"
	"time"
)

// Page is the browser capability the chat automaton drives. Implementations
// report a lost page or connection as an apperr.CodeCapabilityFailure error;
// every other error is an ordinary UI miss (timeout, detached node, ...).
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error
	IsVisible(ctx context.Context, selector string) (bool, error)
	Focus(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string, delay time.Duration) error
	Fill(ctx context.Context, selector, text string) error
	InputValue(ctx context.Context, selector string) (string, error)
	Press(ctx context.Context, key string) error
	Click(ctx context.Context, selector string, opts ClickOptions) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	QueryFirst(ctx context.Context, selector string) (Element, error)
	Evaluate(ctx context.Context, script string) (any, error)
	URL() string
	Close() error
}

// ClickOptions tunes Page.Click. Force skips the actionability checks, so a
// control covered by an overlay still receives the click.
type ClickOptions struct {
	Timeout time.Duration
	Force   bool
}

// Element is a handle to a node on a Page. QueryFirst returns (nil, nil) when
// nothing matches.
type Element interface {
	QueryFirst(ctx context.Context, selector string) (Element, error)
	Text(ctx context.Context) (string, error)
	SetFiles(ctx context.Context, path string) error
}

// PageProvider supplies pages from one shared, authenticated browser context.
type PageProvider interface {
	Connect(ctx context.Context) error
	NewPage(ctx context.Context) (Page, error)
	SaveState(ctx context.Context) (json.RawMessage, error)
	LoadState(ctx context.Context) error
	ApplyState(ctx context.Context, state json.RawMessage) error
	Close(ctx context.Context) error
}

type ChatStore interface {
	SyncAccount(ctx context.Context, email, password string) (*entity.Account, error)
	SaveBrowserSession(ctx context.Context, sessionID, siteName string, accountEmail *string, state json.RawMessage) error
	GetBrowserSession(ctx context.Context, sessionID string) (json.RawMessage, error)
	SaveMessage(ctx context.Context, sessionID, chatID string, role entity.Role, content string, imageURL *string) error
	GetChat(ctx context.Context, chatID string) (*entity.Chat, error)
	RenameChat(ctx context.Context, oldID, newID string) error
	DeleteChat(ctx context.Context, chatID string) error
	ListChats(ctx context.Context, limit, offset int) ([]entity.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]entity.Message, error)
}
