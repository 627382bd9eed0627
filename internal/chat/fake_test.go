package chat

import (
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"context"
	"errors"
	"sync"
	"time"
)

var errMiss = errors.New("timeout waiting for selector")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	return nil
}

type fakeElement struct {
	text     string
	children map[string]*fakeElement
	files    []string
	filesErr error
	textErr  error
	textFn   func() string
}

func (e *fakeElement) QueryFirst(_ context.Context, selector string) (ports.Element, error) {
	if child, ok := e.children[selector]; ok {
		return child, nil
	}

	return nil, nil
}

func (e *fakeElement) Text(context.Context) (string, error) {
	if e.textFn != nil {
		return e.textFn(), e.textErr
	}

	return e.text, e.textErr
}

func (e *fakeElement) SetFiles(_ context.Context, path string) error {
	if e.filesErr != nil {
		return e.filesErr
	}

	e.files = append(e.files, path)

	return nil
}

// fakePage is a scripted stand-in for a browser page. Visibility can be
// static (visible) or computed (visibleFn); hooks let tests emulate the host.
type fakePage struct {
	mu sync.Mutex

	visible   map[string]bool
	visibleFn func(selector string) (bool, error)
	inputs    map[string]string
	queries   map[string][]*fakeElement
	url       string
	lost      bool

	typed    []string
	filled   []string
	pressed  []string
	clicked  []string
	forced   []string
	probed   []string
	clickErr error
	evalRes  any
	evalled  int
	closed   bool

	onPress    func(p *fakePage, key string)
	onNavigate func(p *fakePage, url string)
}

func newFakePage() *fakePage {
	return &fakePage{
		visible: map[string]bool{},
		inputs:  map[string]string{},
		queries: map[string][]*fakeElement{},
	}
}

func (p *fakePage) capability(op string) error {
	if p.lost {
		return apperr.Capability(op, errors.New("target closed"))
	}

	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	if err := p.capability("Navigate"); err != nil {
		return err
	}

	p.url = url
	if p.onNavigate != nil {
		p.onNavigate(p, url)
	}

	return nil
}

func (p *fakePage) isVisible(selector string) (bool, error) {
	if p.visibleFn != nil {
		return p.visibleFn(selector)
	}

	return p.visible[selector], nil
}

func (p *fakePage) WaitForVisible(_ context.Context, selector string, _ time.Duration) error {
	if err := p.capability("WaitForVisible"); err != nil {
		return err
	}

	p.probed = append(p.probed, selector)

	visible, err := p.isVisible(selector)
	if err != nil {
		return err
	}

	if !visible {
		return errMiss
	}

	return nil
}

func (p *fakePage) IsVisible(_ context.Context, selector string) (bool, error) {
	if err := p.capability("IsVisible"); err != nil {
		return false, err
	}

	return p.isVisible(selector)
}

func (p *fakePage) Focus(context.Context, string) error {
	return p.capability("Focus")
}

func (p *fakePage) Type(_ context.Context, selector, text string, _ time.Duration) error {
	if err := p.capability("Type"); err != nil {
		return err
	}

	p.typed = append(p.typed, text)
	p.inputs[selector] += text

	return nil
}

func (p *fakePage) Fill(_ context.Context, selector, text string) error {
	if err := p.capability("Fill"); err != nil {
		return err
	}

	p.filled = append(p.filled, text)
	p.inputs[selector] = text

	return nil
}

func (p *fakePage) InputValue(_ context.Context, selector string) (string, error) {
	if err := p.capability("InputValue"); err != nil {
		return "", err
	}

	value, ok := p.inputs[selector]
	if !ok {
		return "", errMiss
	}

	return value, nil
}

func (p *fakePage) Press(_ context.Context, key string) error {
	if err := p.capability("Press"); err != nil {
		return err
	}

	p.pressed = append(p.pressed, key)
	if p.onPress != nil {
		p.onPress(p, key)
	}

	return nil
}

func (p *fakePage) Click(_ context.Context, selector string, opts ports.ClickOptions) error {
	if err := p.capability("Click"); err != nil {
		return err
	}

	if p.clickErr != nil {
		return p.clickErr
	}

	p.clicked = append(p.clicked, selector)
	if opts.Force {
		p.forced = append(p.forced, selector)
	}

	return nil
}

func (p *fakePage) QueryAll(_ context.Context, selector string) ([]ports.Element, error) {
	if err := p.capability("QueryAll"); err != nil {
		return nil, err
	}

	found := p.queries[selector]
	out := make([]ports.Element, len(found))
	for i, el := range found {
		out[i] = el
	}

	return out, nil
}

func (p *fakePage) QueryFirst(_ context.Context, selector string) (ports.Element, error) {
	if err := p.capability("QueryFirst"); err != nil {
		return nil, err
	}

	if found := p.queries[selector]; len(found) > 0 {
		return found[0], nil
	}

	return nil, nil
}

func (p *fakePage) Evaluate(context.Context, string) (any, error) {
	p.evalled++

	return p.evalRes, nil
}

func (p *fakePage) URL() string {
	return p.url
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

// testOptions are DefaultOptions driven by the fake clock.
func testOptions(clock Clock) Options {
	opts := DefaultOptions()
	opts.Clock = clock

	return opts
}
