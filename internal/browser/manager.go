package browser

import (
	"chat-bridge/internal/config"
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"chat-bridge/pkg/tracing"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
	actionTimeout      = 10 * time.Second
)

// Manager owns the browser connection and the one authenticated context all
// pages share. Pages never outlive the Manager.
type Manager struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	mu             sync.Mutex
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	ready          bool
}

var _ ports.PageProvider = (*Manager)(nil)

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewManager(params Params) *Manager {
	return &Manager{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer: otel.Tracer(browserTracer),
		ready:  false,
	}
}

// SessionFiles returns the storage-state and metadata paths for the site.
func SessionFiles(cfg *config.Config) (storage, meta string) {
	dir := cfg.BrowserConfig.SessionDir
	site := cfg.SiteConfig.Name

	return filepath.Join(dir, site+"_storage.json"), filepath.Join(dir, site+"_meta.json")
}

// ConnectURL builds the Browserless CDP endpoint. The session id and the
// user-data-dir pin the remote profile so logins survive reconnects.
func ConnectURL(base, sessionID, token string) string {
	params := []string{
		"sessionId=" + url.QueryEscape(sessionID),
		"keepAlive=true",
		"--user-data-dir=/tmp/session-" + url.QueryEscape(sessionID),
	}

	if token != "" {
		params = append(params, "token="+url.QueryEscape(token))
	}

	return strings.TrimRight(base, "/") + "/chromium?" + strings.Join(params, "&")
}

func (m *Manager) Connect(ctx context.Context) (err error) {
	const op = "Connect"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return nil
	}

	remote := m.config.BrowserConfig.BrowserlessURL != ""

	step.AddEvent("installing playwright")

	err = playwright.Install(&playwright.RunOptions{SkipInstallBrowsers: remote})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_install_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.playwright = pw

	if remote {
		err = m.connectBrowserless(ctx)
	} else {
		err = m.launchLocal(ctx)
	}

	if err != nil {
		_ = pw.Stop()
		m.playwright = nil

		return err
	}

	if err = m.newContext(ctx); err != nil {
		_ = m.browser.Close()
		_ = pw.Stop()
		m.browser, m.playwright = nil, nil

		return err
	}

	m.importCookies(logger)

	m.ready = true
	logger.Info("Browser connected")

	return nil
}

func (m *Manager) connectBrowserless(ctx context.Context) (err error) {
	const op = "connectBrowserless"
	cfg := m.config.BrowserConfig
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, cfg.BrowserlessURL))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("session_id", cfg.SessionID))
	defer func() {
		step.End(err)
	}()

	logger.Info("Connecting to Browserless", zap.String("session_id", cfg.SessionID))

	browser, err := m.playwright.Chromium.ConnectOverCDP(ConnectURL(cfg.BrowserlessURL, cfg.SessionID, cfg.BrowserlessToken))
	if err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "cdp_connect_failed",
			apperr.MetaStage:  apperr.StageBrowser,
			apperr.MetaURL:    cfg.BrowserlessURL,
		})
	}

	m.browser = browser

	return nil
}

func (m *Manager) launchLocal(ctx context.Context) (err error) {
	const op = "launchLocal"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("No Browserless URL configured, launching local Chromium")

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.config.BrowserConfig.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--window-size=1920,1080",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browser = browser

	return nil
}

func (m *Manager) newContext(ctx context.Context) (err error) {
	const op = "newContext"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	options := playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: 1920, Height: 1080},
		UserAgent:         playwright.String(m.config.BrowserConfig.UserAgent),
		IgnoreHttpsErrors: playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
	}

	storage, _ := SessionFiles(m.config)
	if _, statErr := os.Stat(storage); statErr == nil {
		logger.Info("Loading stored session", zap.String(logg.Path, storage))
		options.StorageStatePath = playwright.String(storage)
	}

	browserContext, err := m.browser.NewContext(options)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext

	return nil
}

func (m *Manager) importCookies(logger *zap.Logger) {
	path := m.config.BrowserConfig.CookiesFile
	if path == "" {
		return
	}

	raw, err := LoadCookieFile(path)
	if err != nil {
		logger.Warn("Cookie import skipped", zap.Error(err))

		return
	}

	cookies := NormalizeCookies(raw, m.config.SiteConfig.BaseURL)
	if len(cookies) == 0 {
		return
	}

	if err := m.browserContext.AddCookies(cookies); err != nil {
		logger.Warn("Cookie import failed", zap.Error(err))

		return
	}

	logger.Info("Cookies imported", zap.Int("count", len(cookies)))
}

func (m *Manager) connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ready && m.browser != nil && m.browser.IsConnected()
}

func (m *Manager) NewPage(ctx context.Context) (_ ports.Page, err error) {
	const op = "NewPage"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	browserContext, ready := m.browserContext, m.ready
	m.mu.Unlock()

	if !ready {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	p, err := browserContext.NewPage()
	if err != nil {
		if errors.Is(err, playwright.ErrTargetClosed) {
			return nil, apperr.Capability(op, err)
		}

		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	navTimeout := time.Duration(m.config.BrowserConfig.Timeout) * time.Millisecond

	return newPage(p, m.connected, actionTimeout, navTimeout), nil
}

type sessionMeta struct {
	SiteName     string    `json:"site_name"`
	SessionID    string    `json:"session_id"`
	LastSaved    time.Time `json:"last_saved"`
	CookiesCount int       `json:"cookies_count"`
}

// SaveState writes the context's storage state and a small metadata file
// next to it, and returns the state for mirroring elsewhere.
func (m *Manager) SaveState(ctx context.Context) (_ json.RawMessage, err error) {
	const op = "SaveState"
	storage, meta := SessionFiles(m.config)
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Path, storage))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := os.MkdirAll(m.config.BrowserConfig.SessionDir, 0o755); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	state, err := m.browserContext.StorageState(storage)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "storage_state_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "storage_state_encode_failed",
		})
	}

	if err := writeMeta(meta, sessionMeta{
		SiteName:     m.config.SiteConfig.Name,
		SessionID:    m.config.BrowserConfig.SessionID,
		LastSaved:    time.Now(),
		CookiesCount: len(state.Cookies),
	}); err != nil {
		logger.Warn("Writing session metadata failed", zap.Error(err))
	}

	logger.Info("Session saved", zap.Int("cookies", len(state.Cookies)))

	return raw, nil
}

func writeMeta(path string, meta sessionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// LoadState re-applies the cookies of the stored session to the live context.
func (m *Manager) LoadState(ctx context.Context) (err error) {
	const op = "LoadState"
	storage, _ := SessionFiles(m.config)
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Path, storage))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	data, err := os.ReadFile(storage)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.NotFoundError(op, fmt.Errorf("no stored session at %s", storage))
		}

		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "storage_read_failed",
			apperr.MetaPath:   storage,
		})
	}

	return m.ApplyState(ctx, data)
}

// ApplyState adds the cookies of a serialized storage state to the context.
func (m *Manager) ApplyState(ctx context.Context, state json.RawMessage) (err error) {
	const op = "ApplyState"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	cookies, err := stateCookies(state)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "storage_state_malformed",
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if len(cookies) == 0 {
		return nil
	}

	if err := m.browserContext.AddCookies(cookies); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "add_cookies_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	logger.Info("Session cookies applied", zap.Int("count", len(cookies)))

	return nil
}

func stateCookies(state json.RawMessage) ([]playwright.OptionalCookie, error) {
	var parsed struct {
		Cookies []playwright.OptionalCookie `json:"cookies"`
	}

	if err := json.Unmarshal(state, &parsed); err != nil {
		return nil, err
	}

	return parsed.Cookies, nil
}

func (m *Manager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Info("Closing connection to browser...")

	if m.browserContext != nil {
		if err := m.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
	}

	m.ready = false
	m.browserContext, m.browser = nil, nil

	if m.playwright != nil {
		pw := m.playwright
		m.playwright = nil

		if err := pw.Stop(); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_stop_failed",
			})
		}
	}

	logger.Info("Browser closed")

	return nil
}

func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ready
}
