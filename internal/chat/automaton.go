package chat

import (
	"chat-bridge/internal/config"
	"chat-bridge/internal/entity"
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"chat-bridge/pkg/tracing"
	"context"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	automatonName   = "ChatAutomaton"
	automatonTracer = "chat.automaton"
)

var conversationIDPattern = regexp.MustCompile(`/s/([^/?#]+)`)

type Options struct {
	Selectors    Selectors
	Clock        Clock
	ProbeTimeout time.Duration
	Submit       SubmitOptions
	Detect       DetectOptions
}

func DefaultOptions() Options {
	return Options{
		Selectors:    DefaultSelectors(),
		Clock:        SystemClock(),
		ProbeTimeout: 2 * time.Second,
		Submit: SubmitOptions{
			TypeDelay:        50 * time.Millisecond,
			SettleDelay:      time.Second,
			AcceptCheckDelay: 500 * time.Millisecond,
			UploadTimeout:    10 * time.Second,
			UploadPoll:       250 * time.Millisecond,
			UploadGrace:      2 * time.Second,
			SendProbeTimeout: 1500 * time.Millisecond,
			SendClickTimeout: 2 * time.Second,
		},
		Detect: DetectOptions{
			GracePeriod:    2 * time.Second,
			PollInterval:   time.Second,
			StableTicks:    2,
			StabilityCheck: true,
		},
	}
}

func NewOptions(cfg *config.ChatConfig) Options {
	opts := DefaultOptions()
	opts.ProbeTimeout = cfg.ProbeTimeout
	opts.Submit.TypeDelay = cfg.TypeDelay
	opts.Detect.GracePeriod = cfg.GracePeriod
	opts.Detect.PollInterval = cfg.PollInterval
	opts.Detect.StabilityCheck = cfg.StabilityCheck

	return opts
}

// Automaton drives one chat page through send, await and extract. It is not
// reentrant: callers run one turn at a time, which the Pool guarantees.
type Automaton struct {
	id        int
	page      ports.Page
	submitter *Submitter
	detector  *Detector
	extractor *Extractor
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewAutomaton(id int, page ports.Page, opts Options, logger *zap.Logger) *Automaton {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}

	logger = logger.With(zap.String(logg.Layer, automatonName), zap.Int(logg.Instance, id))

	resolver := NewResolver(page, opts.ProbeTimeout, logger)
	extractor := NewExtractor(page, opts.Selectors, logger)

	return &Automaton{
		id:        id,
		page:      page,
		submitter: NewSubmitter(page, resolver, opts.Selectors, opts.Clock, opts.Submit, logger),
		detector:  NewDetector(page, extractor, opts.Selectors.Liveness, opts.Clock, opts.Detect, logger),
		extractor: extractor,
		logger:    logger,
		tracer:    otel.Tracer(automatonTracer),
	}
}

func (a *Automaton) ID() int {
	return a.id
}

// Open navigates the page, typically to a new or an existing conversation.
func (a *Automaton) Open(ctx context.Context, url string) (err error) {
	const op = "Open"
	logger := a.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	ctx, step := tracing.StartSpan(ctx, a.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if err := a.page.Navigate(ctx, url); err != nil {
		if apperr.IsCapability(err) {
			return err
		}

		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "navigate_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	return nil
}

// Send submits one message. See Submitter.Submit for the result contract.
func (a *Automaton) Send(ctx context.Context, req entity.SubmissionRequest) (ok bool, err error) {
	const op = "Send"
	logger := a.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, a.tracer, logger, op,
		attribute.Int("text_length", len(req.Text)),
		attribute.Bool("attachment", req.Attachment != ""))
	defer func() {
		step.End(err)
	}()

	ok, err = a.submitter.Submit(ctx, req)
	if apperr.Is(err, apperr.CodeInputNotFound) {
		a.logCandidates(ctx, logger)
	}

	step.SetAttributes(attribute.Bool("accepted", ok))

	return ok, err
}

func (a *Automaton) AwaitCompletion(ctx context.Context, timeout time.Duration) (done bool, err error) {
	const op = "AwaitCompletion"
	logger := a.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, a.tracer, logger, op, attribute.String("timeout", timeout.String()))
	defer func() {
		step.End(err)
	}()

	a.detector.onTransition = func(from, to entity.CompletionState) {
		step.Transition(from.String(), to.String())
	}
	defer func() {
		a.detector.onTransition = nil
	}()

	return a.detector.Await(ctx, timeout)
}

func (a *Automaton) LatestReply(ctx context.Context) (reply entity.ExtractedReply, err error) {
	const op = "GetLatestReply"
	logger := a.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, a.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	reply, err = a.extractor.Latest(ctx)
	step.SetAttributes(attribute.Bool("found", reply.Found))

	return reply, err
}

func (a *Automaton) CurrentURL() string {
	return a.page.URL()
}

// ConversationID returns the permanent id the host put into the URL, if any.
func (a *Automaton) ConversationID() (string, bool) {
	return ConversationIDFromURL(a.page.URL())
}

func ConversationIDFromURL(url string) (string, bool) {
	m := conversationIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}

	return m[1], true
}

func (a *Automaton) Close() error {
	return a.page.Close()
}

func (a *Automaton) logCandidates(ctx context.Context, logger *zap.Logger) {
	result, err := a.page.Evaluate(ctx, candidatesScript)
	if err != nil {
		logger.Debug("DOM snapshot failed", zap.Error(err))

		return
	}

	candidates := parseCandidates(result)
	logger.Warn("Chat input not found; visible candidates", zap.Int("count", len(candidates)), zap.Any("candidates", candidates))
}
