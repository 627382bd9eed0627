package chat

import (
	"chat-bridge/internal/entity"
	"chat-bridge/internal/ports"
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"context"
	"strings"

	"go.uber.org/zap"
)

// Extractor reads the text of the most recent message bubble.
type Extractor struct {
	page      ports.Page
	selectors Selectors
	logger    *zap.Logger
}

func NewExtractor(page ports.Page, selectors Selectors, logger *zap.Logger) *Extractor {
	return &Extractor{
		page:      page,
		selectors: selectors,
		logger:    logger,
	}
}

// Latest returns Found=false when no bubble matches or the last bubble has no
// text. That is a normal outcome; only a lost page yields an error.
func (e *Extractor) Latest(ctx context.Context) (entity.ExtractedReply, error) {
	const op = "GetLatestReply"

	bubble, err := e.lastBubble(ctx)
	if err != nil || bubble == nil {
		return entity.ExtractedReply{}, err
	}

	text, err := e.bubbleText(ctx, bubble)
	if err != nil {
		if apperr.IsCapability(err) {
			return entity.ExtractedReply{}, err
		}

		e.logger.Debug("Reading bubble failed", zap.String(logg.Operation, op), zap.Error(err))

		return entity.ExtractedReply{}, nil
	}

	text = strings.TrimSpace(text)

	return entity.ExtractedReply{Text: text, Found: text != ""}, nil
}

func (e *Extractor) lastBubble(ctx context.Context) (ports.Element, error) {
	for _, selector := range e.selectors.Bubbles {
		bubbles, err := e.page.QueryAll(ctx, selector)
		if err != nil {
			if apperr.IsCapability(err) {
				return nil, err
			}

			continue
		}

		if len(bubbles) > 0 {
			return bubbles[len(bubbles)-1], nil
		}
	}

	return nil, nil
}

// bubbleText prefers the nested content block, and inside either the content
// block or the bubble itself prefers rendered markdown over raw text.
func (e *Extractor) bubbleText(ctx context.Context, bubble ports.Element) (string, error) {
	scope := bubble

	if e.selectors.BubbleContent != "" {
		content, err := bubble.QueryFirst(ctx, e.selectors.BubbleContent)
		if apperr.IsCapability(err) {
			return "", err
		}

		if content != nil {
			scope = content
		}
	}

	if e.selectors.Markdown != "" {
		markdown, err := scope.QueryFirst(ctx, e.selectors.Markdown)
		if apperr.IsCapability(err) {
			return "", err
		}

		if markdown != nil {
			return markdown.Text(ctx)
		}
	}

	return scope.Text(ctx)
}
