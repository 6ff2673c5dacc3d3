package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OtelMetrics mirrors the subset of Metrics that makes sense as an
// OpenTelemetry metric stream (dispatch counts) through the stdout
// metric exporter, alongside (not instead of) the Prometheus
// collectors Metrics registers. Pair it with Metrics when an operator
// wants both a /metrics scrape endpoint and a periodic stdout
// emission for local debugging, per the same TracingEnabled switch
// that governs the span exporter.
type OtelMetrics struct {
	provider      *sdkmetric.MeterProvider
	DispatchTotal metric.Int64Counter
}

// NewOtelMetrics configures the global MeterProvider to export via the
// stdout exporter on a periodic reader, tagged with serviceName. Call
// Shutdown before process exit to flush any pending export.
func NewOtelMetrics(ctx context.Context, serviceName string) (*OtelMetrics, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: build stdout metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/wlproxy/wlproxy/internal/session")

	counter, err := meter.Int64Counter("wlproxy.dispatch_total",
		metric.WithDescription("Total frames dispatched, by direction and outcome."))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build dispatch counter: %w", err)
	}

	return &OtelMetrics{provider: provider, DispatchTotal: counter}, nil
}

// Shutdown flushes and stops the meter provider.
func (m *OtelMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
