package chat

import (
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Resolver probes a Locator in order and returns the first visible candidate.
type Resolver struct {
	page   ports.Page
	probe  time.Duration
	logger *zap.Logger
}

func NewResolver(page ports.Page, probe time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		page:   page,
		probe:  probe,
		logger: logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, locator Locator) (string, error) {
	return r.ResolveWithin(ctx, locator, r.probe)
}

// ResolveWithin is Resolve with a custom per-candidate probe timeout.
// A miss on every candidate yields CodeElementNotFound; a lost page is
// returned as-is so the caller can escalate it.
func (r *Resolver) ResolveWithin(ctx context.Context, locator Locator, probe time.Duration) (string, error) {
	const op = "Resolve"

	for i, selector := range locator {
		if selector == "" {
			continue
		}

		err := r.page.WaitForVisible(ctx, selector, probe)
		if err == nil {
			r.logger.Debug("Locator resolved", zap.String(logg.Selector, selector), zap.Int("rank", i))

			return selector, nil
		}

		if apperr.IsCapability(err) {
			return "", err
		}

		if ctx.Err() != nil {
			return "", apperr.Wrap(op, apperr.CodeElementNotFound, ctx.Err(), map[string]any{
				apperr.MetaReason: "context_done",
			})
		}
	}

	return "", apperr.Wrap(op, apperr.CodeElementNotFound, fmt.Errorf("none of %d candidates became visible", len(locator)), map[string]any{
		apperr.MetaReason:  "no_visible_candidate",
		apperr.MetaTimeout: probe.String(),
	})
}
