package usecase

import (
	"chat-bridge/internal/browser"
	"chat-bridge/internal/chat"
	"chat-bridge/internal/config"
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"chat-bridge/pkg/tracing"
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionServiceName = "SessionService"
	sessionTracer      = "usecase.session"
)

// SessionService keeps the shared browser context authenticated and mirrors
// its storage state into the database.
type SessionService struct {
	config  *config.Config
	logger  *zap.Logger
	tracer  trace.Tracer
	browser ports.PageProvider
	store   ports.ChatStore
	login   func(ctx context.Context, page ports.Page, opts browser.LoginOptions, logger *zap.Logger) (bool, error)
}

type SessionServiceParams struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Browser ports.PageProvider
	Store   ports.ChatStore
}

func NewSessionService(params SessionServiceParams) *SessionService {
	return &SessionService{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, sessionServiceName)),
		tracer:  otel.Tracer(sessionTracer),
		browser: params.Browser,
		store:   params.Store,
		login:   browser.EnsureLoggedIn,
	}
}

// Establish connects the browser, restores the last known session and logs in
// if needed. Only a failed connection is fatal.
func (s *SessionService) Establish(ctx context.Context) (err error) {
	const op = "Establish"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := s.browser.Connect(ctx); err != nil {
		return err
	}

	s.restore(ctx, logger)

	site := s.config.SiteConfig
	if site.User != "" {
		if _, err := s.store.SyncAccount(ctx, site.User, site.Password); err != nil {
			logger.Warn("Account sync failed", zap.Error(err))
		}
	}

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			logger.Debug("Closing login page failed", zap.Error(closeErr))
		}
	}()

	opts := browser.DefaultLoginOptions()
	opts.BaseURL = site.BaseURL
	opts.User = site.User
	opts.Password = site.Password
	opts.Indicator = chat.LoginIndicator

	loggedIn, err := s.login(ctx, page, opts, s.logger)
	if err != nil {
		return err
	}

	step.AddEvent("login checked")

	if !loggedIn {
		logger.Warn("Browser session is not authenticated; turns will fail until it is")

		return nil
	}

	if err := s.Persist(ctx); err != nil {
		logger.Warn("Persisting session failed", zap.Error(err))
	}

	return nil
}

// restore applies the stored session file, falling back to the copy kept in
// the database.
func (s *SessionService) restore(ctx context.Context, logger *zap.Logger) {
	err := s.browser.LoadState(ctx)
	if err == nil {
		return
	}

	if !apperr.Is(err, apperr.CodeNotFound) {
		logger.Warn("Loading stored session failed", zap.Error(err))

		return
	}

	state, err := s.store.GetBrowserSession(ctx, s.config.BrowserConfig.SessionID)
	if err != nil {
		if !apperr.Is(err, apperr.CodeNotFound) {
			logger.Warn("Reading session from database failed", zap.Error(err))
		}

		return
	}

	if err := s.browser.ApplyState(ctx, state); err != nil {
		logger.Warn("Applying session from database failed", zap.Error(err))

		return
	}

	logger.Info("Session restored from database")
}

// Persist saves the storage state to disk and the database.
func (s *SessionService) Persist(ctx context.Context) (err error) {
	const op = "Persist"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	state, err := s.browser.SaveState(ctx)
	if err != nil {
		return err
	}

	var email *string
	if s.config.SiteConfig.User != "" {
		email = &s.config.SiteConfig.User
	}

	return s.store.SaveBrowserSession(ctx, s.config.BrowserConfig.SessionID, s.config.SiteConfig.Name, email, state)
}

func (s *SessionService) Close(ctx context.Context) error {
	return s.browser.Close(ctx)
}
