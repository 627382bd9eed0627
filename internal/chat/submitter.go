package chat

import (
	"chat-bridge/internal/entity"
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const commitKey = "Enter"

type SubmitOptions struct {
	TypeDelay        time.Duration
	SettleDelay      time.Duration
	AcceptCheckDelay time.Duration
	UploadTimeout    time.Duration
	UploadPoll       time.Duration
	UploadGrace      time.Duration
	SendProbeTimeout time.Duration
	SendClickTimeout time.Duration
}

// Submitter types a message, attaches an optional file and commits it.
type Submitter struct {
	page      ports.Page
	resolver  *Resolver
	selectors Selectors
	clock     Clock
	opts      SubmitOptions
	logger    *zap.Logger
}

func NewSubmitter(page ports.Page, resolver *Resolver, selectors Selectors, clock Clock, opts SubmitOptions, logger *zap.Logger) *Submitter {
	return &Submitter{
		page:      page,
		resolver:  resolver,
		selectors: selectors,
		clock:     clock,
		opts:      opts,
		logger:    logger,
	}
}

// Submit returns true only after a positive acceptance signal. A false result
// always comes with an *apperr.Error naming the reason; only
// CodeCapabilityFailure errors are fatal for the page.
func (s *Submitter) Submit(ctx context.Context, req entity.SubmissionRequest) (bool, error) {
	const op = "Submit"
	logger := s.logger.With(zap.String(logg.Operation, op))

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return false, apperr.InvalidReqError(op, "text", errors.New("message text is empty"))
	}

	input, err := s.resolver.Resolve(ctx, s.selectors.Input)
	if err != nil {
		if apperr.IsCapability(err) {
			return false, err
		}

		return false, apperr.Wrap(op, apperr.CodeInputNotFound, err, map[string]any{
			apperr.MetaReason: "input_not_resolved",
			apperr.MetaStage:  apperr.StageInteraction,
		})
	}

	logger = logger.With(zap.String(logg.Selector, input))

	if err := s.populate(ctx, logger, input, text); err != nil {
		return false, err
	}

	if req.Attachment != "" {
		if err := s.attach(ctx, logger, req.Attachment); err != nil {
			if !apperr.IsCapability(err) {
				if clearErr := s.page.Fill(ctx, input, ""); apperr.IsCapability(clearErr) {
					return false, clearErr
				}
			}

			return false, err
		}
	}

	return s.commit(ctx, logger, input)
}

// populate enters text through real keyboard events so the host's reactive
// state sees the change. Multi-line text goes through Fill, since a typed
// newline would commit early; Fill still dispatches input events.
func (s *Submitter) populate(ctx context.Context, logger *zap.Logger, input, text string) error {
	if err := s.page.Focus(ctx, input); err != nil {
		if apperr.IsCapability(err) {
			return err
		}

		logger.Debug("Focus failed", zap.Error(err))
	}

	var err error
	if strings.ContainsAny(text, "\r\n") {
		err = s.page.Fill(ctx, input, text)
	} else {
		err = s.page.Type(ctx, input, text, s.opts.TypeDelay)
	}

	if apperr.IsCapability(err) {
		return err
	}

	if err != nil {
		logger.Warn("Typing failed, falling back to fill", zap.Error(err))
	}

	if err := s.clock.Sleep(ctx, s.opts.SettleDelay); err != nil {
		return apperr.WrapWithReason("populate", apperr.CodeSubmissionAmbiguous, err, "context_done")
	}

	value, err := s.page.InputValue(ctx, input)
	if apperr.IsCapability(err) {
		return err
	}

	if err == nil && strings.TrimSpace(value) == text {
		return nil
	}

	logger.Debug("Input does not hold the typed text, refilling", zap.Int("have", len(value)), zap.Int("want", len(text)))

	if err := s.page.Fill(ctx, input, text); err != nil {
		if apperr.IsCapability(err) {
			return err
		}

		logger.Warn("Refill failed", zap.Error(err))
	}

	return nil
}

// attach uploads path through the hidden file input. The upload indicator is
// best effort: when it never shows, the turn continues after a short grace.
func (s *Submitter) attach(ctx context.Context, logger *zap.Logger, path string) error {
	const op = "attach"
	logger = logger.With(zap.String(logg.Path, path))

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is a directory", path)
		}

		return apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "attachment_unreadable",
			apperr.MetaStage:  apperr.StageUpload,
			apperr.MetaPath:   path,
		})
	}

	var fileInput ports.Element
	for _, selector := range s.selectors.FileInput {
		el, err := s.page.QueryFirst(ctx, selector)
		if apperr.IsCapability(err) {
			return err
		}

		if el != nil {
			fileInput = el

			break
		}
	}

	if fileInput == nil {
		logger.Warn("File input not found, sending without attachment")

		return nil
	}

	if err := fileInput.SetFiles(ctx, path); err != nil {
		if apperr.IsCapability(err) {
			return err
		}

		logger.Warn("Setting attachment failed, sending without attachment", zap.Error(err))

		return nil
	}

	seen, err := s.waitUploadIndicator(ctx)
	if err != nil {
		return err
	}

	if seen {
		logger.Info("Attachment uploaded")

		return nil
	}

	logger.Warn("Upload indicator did not appear, continuing", zap.Duration(apperr.MetaTimeout, s.opts.UploadTimeout))

	if err := s.clock.Sleep(ctx, s.opts.UploadGrace); err != nil {
		return apperr.WrapWithReason(op, apperr.CodeSubmissionAmbiguous, err, "context_done")
	}

	return nil
}

func (s *Submitter) waitUploadIndicator(ctx context.Context) (bool, error) {
	deadline := s.clock.Now().Add(s.opts.UploadTimeout)

	for {
		for _, selector := range s.selectors.UploadIndicator {
			visible, err := s.page.IsVisible(ctx, selector)
			if apperr.IsCapability(err) {
				return false, err
			}

			if visible {
				return true, nil
			}
		}

		if !s.clock.Now().Before(deadline) {
			return false, nil
		}

		if err := s.clock.Sleep(ctx, s.opts.UploadPoll); err != nil {
			return false, nil
		}
	}
}

// commit presses the commit key and treats a cleared input as acceptance.
// When the input still holds text, a ranked send control is clicked instead.
func (s *Submitter) commit(ctx context.Context, logger *zap.Logger, input string) (bool, error) {
	const op = "commit"

	if err := s.page.Press(ctx, commitKey); err != nil {
		if apperr.IsCapability(err) {
			return false, err
		}

		logger.Warn("Commit key failed", zap.Error(err))
	}

	if err := s.clock.Sleep(ctx, s.opts.AcceptCheckDelay); err != nil {
		return false, apperr.WrapWithReason(op, apperr.CodeSubmissionAmbiguous, err, "context_done")
	}

	value, err := s.page.InputValue(ctx, input)
	if apperr.IsCapability(err) {
		return false, err
	}

	if err != nil {
		// The input is gone, most likely because the host switched layouts
		// after accepting the message. This could also be an unrelated
		// re-render; it is counted as accepted.
		logger.Info("Input no longer present after commit, assuming accepted")

		return true, nil
	}

	if strings.TrimSpace(value) == "" {
		logger.Info("Message accepted")

		return true, nil
	}

	logger.Info("Input not cleared, trying send control")

	send, err := s.resolver.ResolveWithin(ctx, s.selectors.Send, s.opts.SendProbeTimeout)
	if err != nil {
		if apperr.IsCapability(err) {
			return false, err
		}

		return false, apperr.Wrap(op, apperr.CodeSubmissionAmbiguous, err, map[string]any{
			apperr.MetaReason: "send_control_not_found",
			apperr.MetaStage:  apperr.StageInteraction,
		})
	}

	if err := s.page.Click(ctx, send, ports.ClickOptions{Timeout: s.opts.SendClickTimeout, Force: true}); err != nil {
		if apperr.IsCapability(err) {
			return false, err
		}

		return false, apperr.Wrap(op, apperr.CodeSubmissionAmbiguous, err, map[string]any{
			apperr.MetaReason:   "send_click_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: send,
		})
	}

	logger.Info("Message sent via send control", zap.String("send_selector", send))

	return true, nil
}
