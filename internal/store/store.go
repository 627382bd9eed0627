package store

import (
	"chat-bridge/internal/config"
	"chat-bridge/internal/entity"
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	storeName     = "ChatStore"
	titleMaxRunes = 50
)

// DBPool abstracts pgxpool.Pool so tests can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	pool   DBPool
	logger *zap.Logger
	now    func() time.Time
}

var _ ports.ChatStore = (*Store)(nil)

// New verifies the connection and returns a store over pool.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, apperr.Wrap("NewStore", apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "ping_failed",
			apperr.MetaStage:  apperr.StageStorage,
		})
	}

	return &Store{
		pool:   pool,
		logger: logger.With(zap.String(logg.Layer, storeName)),
		now:    time.Now,
	}, nil
}

// Connect opens a pgx pool sized from the configuration.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	const op = "Connect"

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, apperr.InvalidReqError(op, "DATABASE_URL", err)
	}

	poolConfig.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "pool_create_failed",
			apperr.MetaStage:  apperr.StageStorage,
		})
	}

	return pool, nil
}

func storageErr(op string, err error) error {
	return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
		apperr.MetaReason: "query_failed",
		apperr.MetaStage:  apperr.StageStorage,
	})
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.logger.Error("Failed to rollback transaction", zap.Error(err))
	}
}

// Title returns the first 50 characters of the first user message.
func Title(content string) string {
	if utf8.RuneCountInString(content) <= titleMaxRunes {
		return content
	}

	runes := []rune(content)

	return string(runes[:titleMaxRunes])
}

const sqlSyncAccount = `
	INSERT INTO accounts (id, email, password, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
	RETURNING id, email, password, created_at;
`

// SyncAccount makes sure the account exists. An existing password is kept.
func (s *Store) SyncAccount(ctx context.Context, email, password string) (*entity.Account, error) {
	const op = "SyncAccount"

	var a entity.Account

	err := s.pool.QueryRow(ctx, sqlSyncAccount, uuid.New(), email, password, s.now()).
		Scan(&a.ID, &a.Email, &a.Password, &a.CreatedAt)
	if err != nil {
		return nil, storageErr(op, err)
	}

	return &a, nil
}

const sqlSaveSession = `
	INSERT INTO sessions (id, session_id, account_email, site_name, storage_state, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)
	ON CONFLICT (session_id) DO UPDATE SET
		account_email = COALESCE(EXCLUDED.account_email, sessions.account_email),
		site_name = EXCLUDED.site_name,
		storage_state = EXCLUDED.storage_state,
		updated_at = EXCLUDED.updated_at;
`

func (s *Store) SaveBrowserSession(ctx context.Context, sessionID, siteName string, accountEmail *string, state json.RawMessage) error {
	const op = "SaveBrowserSession"

	if _, err := s.pool.Exec(ctx, sqlSaveSession, uuid.New(), sessionID, accountEmail, siteName, state, s.now()); err != nil {
		return storageErr(op, err)
	}

	s.logger.Info("Browser session stored", zap.String(logg.Operation, op), zap.String("session_id", sessionID))

	return nil
}

const sqlGetSession = `SELECT storage_state FROM sessions WHERE session_id = $1;`

func (s *Store) GetBrowserSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	const op = "GetBrowserSession"

	var state []byte

	err := s.pool.QueryRow(ctx, sqlGetSession, sessionID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundError(op, fmt.Errorf("session %s not found", sessionID))
	}

	if err != nil {
		return nil, storageErr(op, err)
	}

	if len(state) == 0 {
		return nil, apperr.NotFoundError(op, fmt.Errorf("session %s has no stored state", sessionID))
	}

	return state, nil
}

const (
	sqlEnsureSession = `
	INSERT INTO sessions (id, session_id, created_at, updated_at)
	VALUES ($1, $2, $3, $3)
	ON CONFLICT (session_id) DO NOTHING;
`
	sqlEnsureChat = `
	INSERT INTO chats (id, chat_id, session_id, title, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (chat_id) DO UPDATE SET title = COALESCE(chats.title, EXCLUDED.title);
`
	sqlInsertMessage = `
	INSERT INTO messages (id, chat_id, role, content, image_url, created_at)
	VALUES ($1, $2, $3, $4, $5, $6);
`
)

// SaveMessage appends a message, creating the session and chat rows when
// they do not exist yet. A chat gets its title from its first user message.
func (s *Store) SaveMessage(ctx context.Context, sessionID, chatID string, role entity.Role, content string, imageURL *string) error {
	const op = "SaveMessage"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr(op, err)
	}
	defer s.rollback(ctx, tx)

	now := s.now()

	var title *string
	if role == entity.RoleUser {
		t := Title(content)
		title = &t
	}

	if _, err := tx.Exec(ctx, sqlEnsureSession, uuid.New(), sessionID, now); err != nil {
		return storageErr(op, err)
	}

	if _, err := tx.Exec(ctx, sqlEnsureChat, uuid.New(), chatID, sessionID, title, now); err != nil {
		return storageErr(op, err)
	}

	if _, err := tx.Exec(ctx, sqlInsertMessage, uuid.New(), chatID, string(role), content, imageURL, now); err != nil {
		return storageErr(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(op, err)
	}

	return nil
}

const sqlSelectChat = `SELECT id, chat_id, session_id, account_email, title, created_at FROM chats`

func scanChat(row pgx.Row) (entity.Chat, error) {
	var c entity.Chat
	err := row.Scan(&c.ID, &c.ChatID, &c.SessionID, &c.AccountEmail, &c.Title, &c.CreatedAt)

	return c, err
}

func (s *Store) GetChat(ctx context.Context, chatID string) (*entity.Chat, error) {
	const op = "GetChat"

	c, err := scanChat(s.pool.QueryRow(ctx, sqlSelectChat+` WHERE chat_id = $1;`, chatID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundError(op, fmt.Errorf("chat %s not found", chatID))
	}

	if err != nil {
		return nil, storageErr(op, err)
	}

	return &c, nil
}

const (
	sqlLockChat  = sqlSelectChat + ` WHERE chat_id = $1 FOR UPDATE;`
	sqlMergeChat = `
	INSERT INTO chats (id, chat_id, session_id, account_email, title, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (chat_id) DO UPDATE SET
		title = COALESCE(chats.title, EXCLUDED.title),
		created_at = LEAST(chats.created_at, EXCLUDED.created_at);
`
	sqlMoveMessages = `UPDATE messages SET chat_id = $1 WHERE chat_id = $2;`
	sqlDeleteChat   = `DELETE FROM chats WHERE chat_id = $1;`
)

// RenameChat moves a chat from its temporary id to the permanent one the host
// assigned. If the permanent chat already exists the two are merged and the
// earlier creation time is kept. A missing source chat is a no-op.
func (s *Store) RenameChat(ctx context.Context, oldID, newID string) error {
	const op = "RenameChat"

	if oldID == newID {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr(op, err)
	}
	defer s.rollback(ctx, tx)

	old, err := scanChat(tx.QueryRow(ctx, sqlLockChat, oldID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}

	if err != nil {
		return storageErr(op, err)
	}

	if _, err := tx.Exec(ctx, sqlMergeChat, uuid.New(), newID, old.SessionID, old.AccountEmail, old.Title, old.CreatedAt); err != nil {
		return storageErr(op, err)
	}

	if _, err := tx.Exec(ctx, sqlMoveMessages, newID, oldID); err != nil {
		return storageErr(op, err)
	}

	if _, err := tx.Exec(ctx, sqlDeleteChat, oldID); err != nil {
		return storageErr(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(op, err)
	}

	s.logger.Info("Chat id migrated", zap.String(logg.Operation, op),
		zap.String("old_chat_id", oldID), zap.String(logg.ChatID, newID))

	return nil
}

// DeleteChat removes a chat and, by cascade, its messages.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	const op = "DeleteChat"

	tag, err := s.pool.Exec(ctx, sqlDeleteChat, chatID)
	if err != nil {
		return storageErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return apperr.NotFoundError(op, fmt.Errorf("chat %s not found", chatID))
	}

	s.logger.Info("Chat deleted", zap.String(logg.Operation, op), zap.String(logg.ChatID, chatID))

	return nil
}

func (s *Store) ListChats(ctx context.Context, limit, offset int) ([]entity.Chat, error) {
	const op = "ListChats"

	rows, err := s.pool.Query(ctx, sqlSelectChat+` ORDER BY created_at DESC LIMIT $1 OFFSET $2;`, limit, offset)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	chats := make([]entity.Chat, 0)

	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}

		chats = append(chats, c)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}

	return chats, nil
}

const sqlListMessages = `
	SELECT id, chat_id, role, content, image_url, created_at
	FROM messages
	WHERE chat_id = $1
	ORDER BY created_at ASC;
`

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]entity.Message, error) {
	const op = "ListMessages"

	rows, err := s.pool.Query(ctx, sqlListMessages, chatID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	messages := make([]entity.Message, 0)

	for rows.Next() {
		var (
			m    entity.Message
			role string
		)

		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &m.ImageURL, &m.CreatedAt); err != nil {
			return nil, storageErr(op, err)
		}

		m.Role = entity.Role(role)
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}

	return messages, nil
}
