package bootstrap

import (
	"chat-bridge/internal/config"
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serviceName = "chat-bridge"

// newTraceProvider installs the global tracer provider. Spans are only
// exported when tracing is enabled; otherwise a no-op provider is used.
func newTraceProvider(lc fx.Lifecycle, config *config.Config, logger *zap.Logger) (trace.TracerProvider, error) {
	if !config.AppConfig.TracingEnabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)

		return tp, nil
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		logger.Error("Failed to create trace exporter", zap.Error(err))

		return nil, err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		logger.Error("Failed to create resource", zap.Error(err))

		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}
