package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracing holds the process-wide OpenTelemetry tracer provider, set up
// once at startup from TelemetryConfig.TracingEnabled. A session that
// runs with tracing disabled gets the no-op tracer from NoopTracer, so
// the session layer never needs to branch on whether tracing is
// configured.
type Tracing struct {
	provider *sdktrace.TracerProvider
	Tracer   trace.Tracer
}

// NewTracing configures the global TracerProvider to export spans via
// the stdout exporter (§2's component budget excludes a metrics/tracing
// backend integration; stdout is the one the teacher's own dependency
// set offers) tagged with serviceName. Call Shutdown before process
// exit to flush buffered spans.
func NewTracing(ctx context.Context, serviceName string) (*Tracing, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracing{
		provider: provider,
		Tracer:   provider.Tracer("github.com/wlproxy/wlproxy/internal/session"),
	}, nil
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// NoopTracer returns the tracer a session should use when tracing is
// disabled: a tracer from a fresh otel no-op provider, so session code
// can always call Start without a nil check.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}
