package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter. Instruments are exported
// through the default Prometheus registry alongside the promauto metrics.
type Observability struct {
	meterProvider *metric.MeterProvider
	aggregations  otelmetric.Int64Counter
	aggDuration   otelmetric.Float64Histogram
	insights      otelmetric.Int64Histogram
	jobCounter    otelmetric.Int64Counter
}

// New returns a usable Observability even when the exporter cannot be
// created; instruments are then no-ops.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	o := &Observability{meterProvider: provider}
	o.aggregations, _ = meter.Int64Counter(
		"deal_context.aggregations",
		otelmetric.WithDescription("Deal contexts built, by whether any branch failed"),
	)
	o.aggDuration, _ = meter.Float64Histogram(
		"deal_context.aggregation.duration",
		otelmetric.WithDescription("Deal context build time"),
		otelmetric.WithUnit("ms"),
	)
	o.insights, _ = meter.Int64Histogram(
		"deal_context.insights",
		otelmetric.WithDescription("Insight sentences generated per prompt"),
	)
	o.jobCounter, _ = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	return o, nil
}

func (o *Observability) RecordAggregation(ctx context.Context, duration time.Duration, failedBranches int) {
	if o == nil || o.aggregations == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.Bool("degraded", failedBranches > 0))
	o.aggregations.Add(ctx, 1, attrs)
	o.aggDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) RecordInsights(ctx context.Context, count int) {
	if o != nil && o.insights != nil {
		o.insights.Record(ctx, int64(count))
	}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o != nil && o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}
