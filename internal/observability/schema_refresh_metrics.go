package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchemaRefreshMetrics tracks snapshot rebuilds.
type SchemaRefreshMetrics struct {
	attempts    metric.Int64Counter
	duration    metric.Float64Histogram
	lastSuccess atomic.Int64
}

// InitSchemaRefreshMetrics creates the instruments on the global meter provider.
func InitSchemaRefreshMetrics(logger *slog.Logger) (*SchemaRefreshMetrics, error) {
	m, err := NewSchemaRefreshMetrics(otel.Meter("relgraph"))
	if err != nil {
		return nil, err
	}
	logger.Debug("schema refresh metrics initialized")
	return m, nil
}

// NewSchemaRefreshMetrics creates the instruments on meter.
func NewSchemaRefreshMetrics(meter metric.Meter) (*SchemaRefreshMetrics, error) {
	m := &SchemaRefreshMetrics{}
	var err error
	if m.attempts, err = meter.Int64Counter("schema.refresh.total",
		metric.WithDescription("Schema rebuild attempts by trigger and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("schema.refresh.duration",
		metric.WithDescription("Duration of schema rebuilds in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh histogram: %w", err)
	}

	if _, err = meter.Int64ObservableGauge("schema.refresh.last_success_unix",
		metric.WithDescription("Unix time of the last successful schema rebuild"),
		metric.WithUnit("s"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if ts := m.lastSuccess.Load(); ts > 0 {
				o.Observe(ts)
			}
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh gauge: %w", err)
	}
	return m, nil
}

// RecordRefresh records one rebuild attempt.
func (m *SchemaRefreshMetrics) RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger, fingerprintMode string) {
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
		attribute.String("fingerprint_mode", fingerprintMode),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if success {
		m.lastSuccess.Store(time.Now().Unix())
	}
}
