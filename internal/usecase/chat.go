package usecase

import (
	"chat-bridge/internal/chat"
	"chat-bridge/internal/config"
	"chat-bridge/internal/entity"
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"chat-bridge/pkg/tracing"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	chatServiceName = "ChatService"
	chatTracer      = "usecase.chat"
	tempChatPrefix  = "tmp-"
	conversationURL = "/a/chat/s/"
)

type ChatService struct {
	config   *config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
	browser  ports.PageProvider
	store    ports.ChatStore
	mu       sync.RWMutex
	sessions Conversations
}

type ChatServiceParams struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Browser ports.PageProvider
	Store   ports.ChatStore
}

func NewChatService(params ChatServiceParams) *ChatService {
	return &ChatService{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, chatServiceName)),
		tracer:  otel.Tracer(chatTracer),
		browser: params.Browser,
		store:   params.Store,
	}
}

// IsTempChatID reports whether id was minted locally because the host had
// not assigned a permanent id yet.
func IsTempChatID(id string) bool {
	return strings.HasPrefix(id, tempChatPrefix)
}

func newTempChatID() string {
	return tempChatPrefix + uuid.NewString()
}

// Start builds the automaton pool. Each automaton gets its own page opened on
// the base URL.
func (s *ChatService) Start(ctx context.Context) (err error) {
	const op = "Start"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.Int("size", s.config.ChatConfig.MaxConcurrency))
	defer func() {
		step.End(err)
	}()

	opts := chat.NewOptions(s.config.ChatConfig)
	baseURL := s.config.SiteConfig.BaseURL

	factory := func(ctx context.Context, id int) (*chat.Automaton, error) {
		page, err := s.browser.NewPage(ctx)
		if err != nil {
			return nil, err
		}

		a := chat.NewAutomaton(id, page, opts, s.logger)
		if err := a.Open(ctx, baseURL); err != nil {
			_ = a.Close()

			return nil, err
		}

		return a, nil
	}

	pool, err := chat.NewPool(ctx, s.config.ChatConfig.MaxConcurrency, factory, s.logger)
	if err != nil {
		return err
	}

	s.setSessions(automatonPool{pool: pool})

	return nil
}

func (s *ChatService) setSessions(c Conversations) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = c
}

func (s *ChatService) Stop(ctx context.Context) error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()

	if sessions == nil {
		return nil
	}

	return sessions.Close()
}

// Turn sends one message and returns the reply. The returned Turn carries the
// chat id even when err is set, once a chat id is known.
func (s *ChatService) Turn(ctx context.Context, req entity.TurnRequest) (turn *entity.Turn, err error) {
	const op = "Turn"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.ChatID, req.ChatID))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("chat_id", req.ChatID),
		attribute.Bool("image", req.ImagePath != ""))
	defer func() {
		step.End(err)
	}()

	if strings.TrimSpace(req.Text) == "" {
		return nil, apperr.InvalidReqError(op, "message", errors.New("message must not be empty"))
	}

	s.mu.RLock()
	sessions := s.sessions
	s.mu.RUnlock()

	if sessions == nil {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "chat_pool_not_started")
	}

	conv, err := sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	// Once an automaton is held the turn runs to completion or its own
	// timeout; a caller going away must not leave the host mid-reply.
	ctx = context.WithoutCancel(ctx)

	defer func() {
		if apperr.IsCapability(err) {
			sessions.Discard(conv)

			return
		}

		sessions.Release(conv)
	}()

	chatID, err := s.route(ctx, conv, req.ChatID, logger)
	if err != nil {
		return nil, err
	}

	turn = &entity.Turn{ChatID: chatID}
	logger = logger.With(zap.String(logg.ChatID, chatID))

	var imageURL *string
	if req.ImagePath != "" && !req.ImageTemporary {
		imageURL = &req.ImagePath
	}

	s.saveMessage(ctx, chatID, entity.RoleUser, req.Text, imageURL, logger)

	sent, err := conv.Send(ctx, entity.SubmissionRequest{Text: req.Text, Attachment: req.ImagePath})
	if err != nil || !sent {
		if err == nil {
			err = apperr.WrapErrorWithReason(op, apperr.CodeSubmissionAmbiguous, "message_not_sent")
		}

		return turn, err
	}

	done, err := conv.AwaitCompletion(ctx, s.config.ChatConfig.ResponseTimeout)
	if err != nil && !apperr.Is(err, apperr.CodeCompletionTimeout) {
		return turn, err
	}

	reply, err := conv.LatestReply(ctx)
	if err != nil {
		return turn, err
	}

	if !reply.Found {
		code := apperr.CodeExtractionEmpty
		if !done {
			code = apperr.CodeCompletionTimeout
		}

		return turn, apperr.WrapErrorWithReason(op, code, "empty_response")
	}

	turn.Response = reply.Text
	turn.Partial = !done

	if turn.Partial {
		logger.Warn("Response incomplete, returning partial text", zap.Int("length", len(reply.Text)))
	}

	s.saveMessage(ctx, chatID, entity.RoleAI, reply.Text, nil, logger)

	if id, ok := conv.ConversationID(); ok && id != chatID {
		if err := s.store.RenameChat(ctx, chatID, id); err != nil {
			logger.Warn("Migrating chat id failed", zap.String("permanent_id", id), zap.Error(err))
		} else {
			turn.ChatID = id
		}
	}

	step.SetAttributes(attribute.Bool("partial", turn.Partial))

	return turn, nil
}

// route opens the conversation for chatID and returns the id the turn is
// stored under. Permanent ids are opened directly; a link the host no longer
// honours is dropped and the turn continues as a new conversation.
func (s *ChatService) route(ctx context.Context, conv Conversation, chatID string, logger *zap.Logger) (string, error) {
	baseURL := strings.TrimRight(s.config.SiteConfig.BaseURL, "/")

	if chatID == "" || IsTempChatID(chatID) {
		if err := conv.Open(ctx, baseURL); err != nil {
			return "", err
		}

		if chatID == "" {
			chatID = newTempChatID()
		}

		return chatID, nil
	}

	if err := conv.Open(ctx, baseURL+conversationURL+chatID); err != nil {
		return "", err
	}

	if id, ok := conv.ConversationID(); ok && id == chatID {
		return chatID, nil
	}

	logger.Warn("Conversation link is no longer valid, starting a new one")

	if err := s.store.DeleteChat(ctx, chatID); err != nil && !apperr.Is(err, apperr.CodeNotFound) {
		logger.Warn("Deleting stale chat failed", zap.Error(err))
	}

	if err := conv.Open(ctx, baseURL); err != nil {
		return "", err
	}

	return newTempChatID(), nil
}

// saveMessage logs storage failures instead of failing the turn.
func (s *ChatService) saveMessage(ctx context.Context, chatID string, role entity.Role, content string, imageURL *string, logger *zap.Logger) {
	sessionID := s.config.BrowserConfig.SessionID

	if err := s.store.SaveMessage(ctx, sessionID, chatID, role, content, imageURL); err != nil {
		logger.Error("Saving message failed", zap.String("role", string(role)), zap.Error(err))
	}
}

func (s *ChatService) ListChats(ctx context.Context, limit, offset int) ([]entity.Chat, error) {
	return s.store.ListChats(ctx, limit, offset)
}

func (s *ChatService) ListMessages(ctx context.Context, chatID string) ([]entity.Message, error) {
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	return s.store.ListMessages(ctx, chatID)
}

func (s *ChatService) DeleteChat(ctx context.Context, chatID string) error {
	return s.store.DeleteChat(ctx, chatID)
}
