// Package telemetry wires the Gateway's optional OTel tracing: an OTLP gRPC
// exporter behind the space descriptor's telemetry block, with a no-op
// tracer when disabled.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/mew-run/gateway/internal/spacecfg"
)

// Shutdown stops the tracer provider and flushes any pending spans.
type Shutdown func(context.Context) error

// noopShutdown is returned when telemetry is disabled.
func noopShutdown(context.Context) error { return nil }

// Init sets up OTLP gRPC tracing per the gateway-only `telemetry:` block in
// space.yaml. Disabled (the default) leaves the global no-op tracer in
// place and costs nothing on the envelope hot path.
func Init(cfg spacecfg.TelemetryConfig) (Shutdown, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		slog.Debug("telemetry disabled")
		return noopShutdown, nil
	}

	ctx := context.Background()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mew-gateway"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("telemetry enabled", "endpoint", cfg.Endpoint, "service", serviceName)
	return tp.Shutdown, nil
}

// Tracer returns the gateway's named tracer; a no-op tracer when telemetry
// is disabled, since otel.Tracer always returns a valid implementation.
func Tracer() trace.Tracer {
	return otel.Tracer("mew-gateway")
}
