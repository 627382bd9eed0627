package chat

import (
	"chat-bridge/internal/entity"
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type DetectOptions struct {
	GracePeriod    time.Duration
	PollInterval   time.Duration
	StableTicks    int
	StabilityCheck bool
}

// Detector decides when a streamed reply has finished rendering. The host
// sends no completion event, so it watches the stop control and then
// requires the reply text to stay identical for StableTicks polls.
type Detector struct {
	page      ports.Page
	extractor *Extractor
	liveness  Locator
	clock     Clock
	opts      DetectOptions
	logger    *zap.Logger

	// onTransition is called on every state change; used for tracing.
	onTransition func(from, to entity.CompletionState)
}

func NewDetector(page ports.Page, extractor *Extractor, liveness Locator, clock Clock, opts DetectOptions, logger *zap.Logger) *Detector {
	if opts.StableTicks < 1 {
		opts.StableTicks = 1
	}

	return &Detector{
		page:      page,
		extractor: extractor,
		liveness:  liveness,
		clock:     clock,
		opts:      opts,
		logger:    logger,
	}
}

// Await returns true once the reply is complete and false when timeout
// elapses first. A false result means the reply may be partial. The returned
// error is non-nil for a timeout (CodeCompletionTimeout) or a lost page.
func (d *Detector) Await(ctx context.Context, timeout time.Duration) (bool, error) {
	const op = "AwaitCompletion"
	logger := d.logger.With(zap.String(logg.Operation, op))

	start := d.clock.Now()
	state := entity.CompletionIdle
	move := func(next entity.CompletionState) {
		if next == state {
			return
		}

		logger.Debug("Completion state", zap.String(logg.State, next.String()), zap.String("from", state.String()))

		if d.onTransition != nil {
			d.onTransition(state, next)
		}

		state = next
	}

	timedOut := func(reason string, cause error) (bool, error) {
		move(entity.CompletionTimedOut)

		if cause == nil {
			cause = fmt.Errorf("reply not complete after %s", timeout)
		}

		return false, apperr.Wrap(op, apperr.CodeCompletionTimeout, cause, map[string]any{
			apperr.MetaReason:  reason,
			apperr.MetaStage:   apperr.StageCompletion,
			apperr.MetaTimeout: timeout.String(),
		})
	}

	if err := d.clock.Sleep(ctx, d.opts.GracePeriod); err != nil {
		return timedOut("context_done", err)
	}

	move(entity.CompletionGenerating)

	var candidate string
	stable := 0

	for {
		if d.clock.Now().Sub(start) >= timeout {
			return timedOut("deadline_exceeded", nil)
		}

		generating, err := d.generating(ctx)
		if err != nil {
			return false, err
		}

		switch {
		case generating:
			move(entity.CompletionGenerating)
			candidate, stable = "", 0
		case !d.opts.StabilityCheck:
			move(entity.CompletionDone)

			return true, nil
		default:
			reply, err := d.extractor.Latest(ctx)
			if err != nil {
				return false, err
			}

			if reply.Found && reply.Text == candidate {
				stable++
			} else {
				candidate, stable = reply.Text, 0
			}

			move(entity.CompletionStabilizing)

			if stable >= d.opts.StableTicks {
				move(entity.CompletionDone)
				logger.Info("Reply complete", zap.Duration("elapsed", d.clock.Now().Sub(start)), zap.Int("length", len(candidate)))

				return true, nil
			}
		}

		if err := d.clock.Sleep(ctx, d.opts.PollInterval); err != nil {
			return timedOut("context_done", err)
		}
	}
}

// generating reports whether any liveness candidate is visible. Ordinary
// probe errors count as "not visible".
func (d *Detector) generating(ctx context.Context) (bool, error) {
	for _, selector := range d.liveness {
		visible, err := d.page.IsVisible(ctx, selector)
		if err != nil {
			if apperr.IsCapability(err) {
				return false, err
			}

			continue
		}

		if visible {
			return true, nil
		}
	}

	return false, nil
}
