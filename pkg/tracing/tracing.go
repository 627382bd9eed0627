package tracing

import (
	"context"

	"chat-bridge/pkg/logg"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Span struct {
	span   trace.Span
	logger *zap.Logger
	ctx    context.Context
}

func StartSpan(ctx context.Context, tracer trace.Tracer, logger *zap.Logger, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	return ctx, &Span{
		span:   span,
		logger: logger,
		ctx:    ctx,
	}
}

func (s *Span) End(err error) {
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		s.span.RecordError(err)
	} else {
		s.span.SetStatus(codes.Ok, "")
	}

	s.span.End()
}

func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// Transition records a state change both as a span event and a debug log line.
func (s *Span) Transition(from, to string) {
	s.span.AddEvent("transition", trace.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))

	if s.logger != nil {
		s.logger.Debug("State transition", zap.String(logg.State, to), zap.String("from", from))
	}
}
