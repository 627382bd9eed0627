package chat

import (
	"context"
	"testing"
	"time"

	"chat-bridge/internal/entity"
	"chat-bridge/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testLiveness = ".ds-stop-button"
	testBubbles  = ".bubble"
)

// scriptReply emulates the host: the stop control is visible while
// generating(elapsed) is true and the only bubble shows text(elapsed).
func scriptReply(page *fakePage, clock *fakeClock, generating func(time.Duration) bool, text func(time.Duration) string) {
	start := clock.Now()

	page.visibleFn = func(selector string) (bool, error) {
		if selector == testLiveness {
			return generating(clock.Now().Sub(start)), nil
		}

		return page.visible[selector], nil
	}

	page.queries[testBubbles] = []*fakeElement{{
		textFn: func() string { return text(clock.Now().Sub(start)) },
	}}
}

func newTestDetector(page *fakePage, clock *fakeClock, stability bool) *Detector {
	opts := testOptions(clock)
	opts.Selectors.Bubbles = Locator{testBubbles}
	opts.Detect.StabilityCheck = stability

	extractor := NewExtractor(page, opts.Selectors, zap.NewNop())

	return NewDetector(page, extractor, Locator{testLiveness}, clock, opts.Detect, zap.NewNop())
}

func TestAwait_TimesOutWhileGenerating(t *testing.T) {
	page := newFakePage()
	clock := newFakeClock()
	scriptReply(page, clock,
		func(time.Duration) bool { return true },
		func(time.Duration) string { return "partial" })

	timeout := 30 * time.Second
	start := clock.Now()

	done, err := newTestDetector(page, clock, true).Await(context.Background(), timeout)
	assert.False(t, done)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCompletionTimeout, apperr.CodeOf(err))
	assert.False(t, apperr.IsCapability(err))

	elapsed := clock.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.LessOrEqual(t, elapsed, timeout+DefaultOptions().Detect.PollInterval)
}

func TestAwait_StableTextCompletes(t *testing.T) {
	page := newFakePage()
	clock := newFakeClock()
	scriptReply(page, clock,
		func(time.Duration) bool { return false },
		func(time.Duration) string { return "Hi there" })

	opts := DefaultOptions().Detect
	start := clock.Now()

	done, err := newTestDetector(page, clock, true).Await(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, done)
	assert.LessOrEqual(t, clock.Now().Sub(start), opts.GracePeriod+2*opts.PollInterval)
}

func TestAwait_CompletesAfterIndicatorDisappears(t *testing.T) {
	page := newFakePage()
	clock := newFakeClock()
	stopAt := 5 * time.Second
	scriptReply(page, clock,
		func(d time.Duration) bool { return d < stopAt },
		func(d time.Duration) string {
			if d < stopAt {
				return "Hi"
			}

			return "Hi there"
		})

	opts := DefaultOptions().Detect
	start := clock.Now()

	done, err := newTestDetector(page, clock, true).Await(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, done)

	elapsed := clock.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, stopAt+2*opts.PollInterval)
	assert.LessOrEqual(t, elapsed, stopAt+opts.GracePeriod+2*opts.PollInterval)
}

func TestAwait_IndicatorFlickerResetsStability(t *testing.T) {
	page := newFakePage()
	clock := newFakeClock()
	// Off at 3s, back on at 4s, off for good at 6s.
	scriptReply(page, clock,
		func(d time.Duration) bool { return d < 3*time.Second || (d >= 4*time.Second && d < 6*time.Second) },
		func(d time.Duration) string {
			if d < 6*time.Second {
				return "chunk"
			}

			return "chunk and the rest"
		})

	start := clock.Now()

	done, err := newTestDetector(page, clock, true).Await(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 8*time.Second, clock.Now().Sub(start))
}

func TestAwait_ChangingTextKeepsWaiting(t *testing.T) {
	page := newFakePage()
	clock := newFakeClock()
	scriptReply(page, clock,
		func(time.Duration) bool { return false },
		func(d time.Duration) string { return d.String() })

	done, err := newTestDetector(page, clock, true).Await(context.Background(), 10*time.Second)
	assert.False(t, done)
	assert.Equal(t, apperr.CodeCompletionTimeout, apperr.CodeOf(err))
}

func TestAwait_EmptyTextNeverCompletes(t *testing.T) {
	page := newFakePage()
	clock := newFakeClock()
	scriptReply(page, clock,
		func(time.Duration) bool { return false },
		func(time.Duration) string { return "" })

	done, err := newTestDetector(page, clock, true).Await(context.Background(), 10*time.Second)
	assert.False(t, done)
	assert.Equal(t, apperr.CodeCompletionTimeout, apperr.CodeOf(err))
}

func TestAwait_WithoutStabilityCheck(t *testing.T) {
	page := newFakePage()
	clock := newFakeClock()
	scriptReply(page, clock,
		func(d time.Duration) bool { return d < 4*time.Second },
		func(d time.Duration) string { return d.String() })

	start := clock.Now()

	done, err := newTestDetector(page, clock, false).Await(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 4*time.Second, clock.Now().Sub(start))
}

func TestAwait_StateTransitions(t *testing.T) {
	page := newFakePage()
	clock := newFakeClock()
	scriptReply(page, clock,
		func(d time.Duration) bool { return d < 3*time.Second },
		func(time.Duration) string { return "ok" })

	d := newTestDetector(page, clock, true)

	var states []entity.CompletionState
	d.onTransition = func(_, to entity.CompletionState) {
		states = append(states, to)
	}

	done, err := d.Await(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []entity.CompletionState{
		entity.CompletionGenerating,
		entity.CompletionStabilizing,
		entity.CompletionDone,
	}, states)
}

func TestAwait_CapabilityFailure(t *testing.T) {
	page := newFakePage()
	page.lost = true

	done, err := newTestDetector(page, newFakeClock(), true).Await(context.Background(), time.Minute)
	assert.False(t, done)
	assert.True(t, apperr.IsCapability(err))
}

func TestAwait_CancelledContext(t *testing.T) {
	page := newFakePage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done, err := newTestDetector(page, newFakeClock(), true).Await(ctx, time.Minute)
	assert.False(t, done)
	assert.Equal(t, apperr.CodeCompletionTimeout, apperr.CodeOf(err))
}
