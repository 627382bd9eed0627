package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testIndicator = "textarea#chat-input"

// loginPage shows the indicator once credentials were typed and the login
// button clicked, or from the start when authenticated is set.
type loginPage struct {
	ports.Page

	authenticated bool
	lost          bool
	typed         map[string]string
	clicked       []string
	navigated     string
}

func newLoginPage() *loginPage {
	return &loginPage{typed: map[string]string{}}
}

func (p *loginPage) Navigate(_ context.Context, url string) error {
	if p.lost {
		return apperr.Capability("Navigate", errors.New("target closed"))
	}

	p.navigated = url

	return nil
}

func (p *loginPage) WaitForVisible(_ context.Context, selector string, _ time.Duration) error {
	if p.lost {
		return apperr.Capability("WaitForVisible", errors.New("target closed"))
	}

	if selector == testIndicator && p.authenticated {
		return nil
	}

	return errors.New("timeout")
}

func (p *loginPage) Type(_ context.Context, selector, text string, _ time.Duration) error {
	p.typed[selector] = text

	return nil
}

func (p *loginPage) Click(_ context.Context, selector string, _ ports.ClickOptions) error {
	p.clicked = append(p.clicked, selector)

	if p.typed[userFieldSelector] == "me@example.com" && p.typed[passwordFieldSelector] == "secret" {
		p.authenticated = true
	}

	return nil
}

func testLoginOptions() LoginOptions {
	opts := DefaultLoginOptions()
	opts.BaseURL = "https://chat.example.com"
	opts.Indicator = testIndicator
	opts.User = "me@example.com"
	opts.Password = "secret"

	return opts
}

func TestEnsureLoggedIn_AlreadyAuthenticated(t *testing.T) {
	page := newLoginPage()
	page.authenticated = true

	ok, err := EnsureLoggedIn(context.Background(), page, testLoginOptions(), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://chat.example.com", page.navigated)
	assert.Empty(t, page.typed)
}

func TestEnsureLoggedIn_SubmitsCredentials(t *testing.T) {
	page := newLoginPage()

	ok, err := EnsureLoggedIn(context.Background(), page, testLoginOptions(), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "me@example.com", page.typed[userFieldSelector])
	assert.Equal(t, "secret", page.typed[passwordFieldSelector])
	assert.Equal(t, []string{loginButtonSelector}, page.clicked)
}

func TestEnsureLoggedIn_WrongCredentialsIsNotFatal(t *testing.T) {
	page := newLoginPage()
	opts := testLoginOptions()
	opts.Password = "wrong"

	ok, err := EnsureLoggedIn(context.Background(), page, opts, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureLoggedIn_NoCredentials(t *testing.T) {
	page := newLoginPage()
	opts := testLoginOptions()
	opts.User = ""

	ok, err := EnsureLoggedIn(context.Background(), page, opts, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, page.clicked)
}

func TestEnsureLoggedIn_LostPage(t *testing.T) {
	page := newLoginPage()
	page.lost = true

	ok, err := EnsureLoggedIn(context.Background(), page, testLoginOptions(), zap.NewNop())
	assert.False(t, ok)
	assert.True(t, apperr.IsCapability(err))
}
