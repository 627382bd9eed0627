package browser

import (
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	userFieldSelector     = "input.ds-input__input"
	passwordFieldSelector = "input[type='password']"
	loginButtonSelector   = `text="Log in"`
)

type LoginOptions struct {
	BaseURL   string
	User      string
	Password  string
	Indicator string

	// CheckTimeout bounds the "already logged in" probe, LoginTimeout the
	// wait after submitting credentials.
	CheckTimeout time.Duration
	LoginTimeout time.Duration
}

func DefaultLoginOptions() LoginOptions {
	return LoginOptions{
		CheckTimeout: 10 * time.Second,
		LoginTimeout: 15 * time.Second,
	}
}

// EnsureLoggedIn opens the site and signs in when the indicator does not
// show up. It reports whether the session ends up authenticated; a failed
// login is not an error, only a lost page is.
func EnsureLoggedIn(ctx context.Context, page ports.Page, opts LoginOptions, logger *zap.Logger) (bool, error) {
	const op = "EnsureLoggedIn"
	logger = logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, opts.BaseURL))

	if err := page.Navigate(ctx, opts.BaseURL); err != nil {
		if apperr.IsCapability(err) {
			return false, err
		}

		logger.Warn("Opening site failed", zap.Error(err))

		return false, nil
	}

	err := page.WaitForVisible(ctx, opts.Indicator, opts.CheckTimeout)
	if err == nil {
		logger.Info("Session already authenticated")

		return true, nil
	}

	if apperr.IsCapability(err) {
		return false, err
	}

	if opts.User == "" || opts.Password == "" {
		logger.Warn("Session not authenticated and no credentials configured")

		return false, nil
	}

	logger.Info("Session expired, logging in")

	steps := []func() error{
		func() error { return page.Type(ctx, userFieldSelector, opts.User, 0) },
		func() error { return page.Type(ctx, passwordFieldSelector, opts.Password, 0) },
		func() error {
			return page.Click(ctx, loginButtonSelector, ports.ClickOptions{Timeout: opts.CheckTimeout})
		},
		func() error { return page.WaitForVisible(ctx, opts.Indicator, opts.LoginTimeout) },
	}

	for i, step := range steps {
		if err := step(); err != nil {
			if apperr.IsCapability(err) {
				return false, err
			}

			logger.Error("Login failed", zap.Int("step", i+1), zap.Error(err))

			return false, nil
		}
	}

	logger.Info("Login succeeded")

	return true, nil
}
