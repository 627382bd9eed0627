package browser

import (
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"context"
	"errors"
	"time"

	"github.com/playwright-community/playwright-go"
)

// page adapts a playwright page to ports.Page. Calls that fail because the
// page or the browser connection is gone come back as capability failures.
type page struct {
	pw            playwright.Page
	connected     func() bool
	actionTimeout time.Duration
	navTimeout    time.Duration
}

var _ ports.Page = (*page)(nil)

func newPage(pw playwright.Page, connected func() bool, actionTimeout, navTimeout time.Duration) *page {
	return &page{
		pw:            pw,
		connected:     connected,
		actionTimeout: actionTimeout,
		navTimeout:    navTimeout,
	}
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// check runs before every call so a dead page fails fast instead of waiting
// out a playwright timeout.
func (p *page) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.pw.IsClosed() {
		return apperr.Capability(op, errors.New("page is closed"))
	}

	if p.connected != nil && !p.connected() {
		return apperr.Capability(op, errors.New("browser disconnected"))
	}

	return nil
}

func (p *page) classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, playwright.ErrTargetClosed) || p.pw.IsClosed() || (p.connected != nil && !p.connected()) {
		return apperr.Capability(op, err)
	}

	return err
}

func (p *page) Navigate(ctx context.Context, url string) error {
	const op = "Navigate"

	if err := p.check(ctx, op); err != nil {
		return err
	}

	_, err := p.pw.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms(p.navTimeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})

	return p.classify(op, err)
}

func (p *page) WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error {
	const op = "WaitForVisible"

	if err := p.check(ctx, op); err != nil {
		return err
	}

	_, err := p.pw.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	})

	return p.classify(op, err)
}

func (p *page) IsVisible(ctx context.Context, selector string) (bool, error) {
	const op = "IsVisible"

	if err := p.check(ctx, op); err != nil {
		return false, err
	}

	visible, err := p.pw.IsVisible(selector)

	return visible, p.classify(op, err)
}

func (p *page) Focus(ctx context.Context, selector string) error {
	const op = "Focus"

	if err := p.check(ctx, op); err != nil {
		return err
	}

	return p.classify(op, p.pw.Focus(selector, playwright.PageFocusOptions{
		Timeout: ms(p.actionTimeout),
	}))
}

func (p *page) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	const op = "Type"

	if err := p.check(ctx, op); err != nil {
		return err
	}

	return p.classify(op, p.pw.Type(selector, text, playwright.PageTypeOptions{
		Delay:   ms(delay),
		Timeout: ms(p.actionTimeout + time.Duration(len(text))*delay),
	}))
}

func (p *page) Fill(ctx context.Context, selector, text string) error {
	const op = "Fill"

	if err := p.check(ctx, op); err != nil {
		return err
	}

	return p.classify(op, p.pw.Fill(selector, text, playwright.PageFillOptions{
		Timeout: ms(p.actionTimeout),
	}))
}

func (p *page) InputValue(ctx context.Context, selector string) (string, error) {
	const op = "InputValue"

	if err := p.check(ctx, op); err != nil {
		return "", err
	}

	value, err := p.pw.InputValue(selector, playwright.PageInputValueOptions{
		Timeout: ms(p.actionTimeout),
	})

	return value, p.classify(op, err)
}

func (p *page) Press(ctx context.Context, key string) error {
	const op = "Press"

	if err := p.check(ctx, op); err != nil {
		return err
	}

	return p.classify(op, p.pw.Keyboard().Press(key))
}

func (p *page) Click(ctx context.Context, selector string, opts ports.ClickOptions) error {
	const op = "Click"

	if err := p.check(ctx, op); err != nil {
		return err
	}

	return p.classify(op, p.pw.Click(selector, clickOptions(opts)))
}

func clickOptions(opts ports.ClickOptions) playwright.PageClickOptions {
	out := playwright.PageClickOptions{
		Timeout: ms(opts.Timeout),
	}

	if opts.Force {
		out.Force = playwright.Bool(true)
	}

	return out
}

func (p *page) QueryAll(ctx context.Context, selector string) ([]ports.Element, error) {
	const op = "QueryAll"

	if err := p.check(ctx, op); err != nil {
		return nil, err
	}

	handles, err := p.pw.QuerySelectorAll(selector)
	if err != nil {
		return nil, p.classify(op, err)
	}

	out := make([]ports.Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, &element{handle: h, page: p})
	}

	return out, nil
}

func (p *page) QueryFirst(ctx context.Context, selector string) (ports.Element, error) {
	const op = "QueryFirst"

	if err := p.check(ctx, op); err != nil {
		return nil, err
	}

	h, err := p.pw.QuerySelector(selector)
	if err != nil {
		return nil, p.classify(op, err)
	}

	if h == nil {
		return nil, nil
	}

	return &element{handle: h, page: p}, nil
}

func (p *page) Evaluate(ctx context.Context, script string) (any, error) {
	const op = "Evaluate"

	if err := p.check(ctx, op); err != nil {
		return nil, err
	}

	result, err := p.pw.Evaluate(script)

	return result, p.classify(op, err)
}

func (p *page) URL() string {
	if p.pw.IsClosed() {
		return ""
	}

	return p.pw.URL()
}

func (p *page) Close() error {
	if p.pw.IsClosed() {
		return nil
	}

	return p.pw.Close()
}

type element struct {
	handle playwright.ElementHandle
	page   *page
}

func (e *element) QueryFirst(ctx context.Context, selector string) (ports.Element, error) {
	const op = "ElementQueryFirst"

	if err := e.page.check(ctx, op); err != nil {
		return nil, err
	}

	h, err := e.handle.QuerySelector(selector)
	if err != nil {
		return nil, e.page.classify(op, err)
	}

	if h == nil {
		return nil, nil
	}

	return &element{handle: h, page: e.page}, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	const op = "ElementText"

	if err := e.page.check(ctx, op); err != nil {
		return "", err
	}

	text, err := e.handle.InnerText()

	return text, e.page.classify(op, err)
}

func (e *element) SetFiles(ctx context.Context, path string) error {
	const op = "SetFiles"

	if err := e.page.check(ctx, op); err != nil {
		return err
	}

	return e.page.classify(op, e.handle.SetInputFiles([]string{path}))
}
