package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/platinummonkey/coursemetrics"

// OTelMetrics holds the OpenTelemetry instruments exported over OTLP next to
// the Prometheus registry. A nil *OTelMetrics records nothing.
type OTelMetrics struct {
	snapshotDuration metric.Float64Histogram
	snapshotErrors   metric.Int64Counter
	sourceQueries    metric.Int64Counter
	sourceDuration   metric.Float64Histogram
}

// NewOTelMetrics creates the instruments on provider, or on the global meter
// provider when provider is nil
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &OTelMetrics{}
	var err error

	m.snapshotDuration, err = meter.Float64Histogram(
		"coursemetrics.snapshot.duration",
		metric.WithDescription("Analytics snapshot compute duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot duration histogram: %w", err)
	}

	m.snapshotErrors, err = meter.Int64Counter(
		"coursemetrics.snapshot.errors",
		metric.WithDescription("Failed analytics snapshot computations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot error counter: %w", err)
	}

	m.sourceQueries, err = meter.Int64Counter(
		"coursemetrics.source.queries",
		metric.WithDescription("Data source queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source query counter: %w", err)
	}

	m.sourceDuration, err = meter.Float64Histogram(
		"coursemetrics.source.duration",
		metric.WithDescription("Data source query duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source duration histogram: %w", err)
	}

	return m, nil
}

func (m *OTelMetrics) recordSnapshot(dashboard string, d time.Duration, err error) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("analytics.dashboard", dashboard),
		attribute.String("result", resultLabel(err)),
	)
	m.snapshotDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.snapshotErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("analytics.dashboard", dashboard)))
	}
}

func (m *OTelMetrics) recordSourceQuery(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("result", resultLabel(err)),
	)
	m.sourceQueries.Add(ctx, 1, attrs)
	m.sourceDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("db.operation", operation)))
}
