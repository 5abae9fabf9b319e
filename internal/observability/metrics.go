package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GraphQLMetrics holds the request and batch loader instruments.
type GraphQLMetrics struct {
	requestDuration       metric.Float64Histogram
	requestCounter        metric.Int64Counter
	errorCounter          metric.Int64Counter
	activeRequests        metric.Int64UpDownCounter
	batchFlushes          metric.Int64Counter
	batchParentCount      metric.Int64Histogram
	batchResultRows       metric.Int64Histogram
	batchQueriesSaved     metric.Int64Counter
	batchSkipped          metric.Int64Counter
	batchFailures         metric.Int64Counter
	cardinalityViolations metric.Int64Counter
}

// InitGraphQLMetrics creates the instruments on the global meter provider.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	return NewGraphQLMetrics(otel.Meter("relgraph"))
}

// NewGraphQLMetrics creates the instruments on meter.
func NewGraphQLMetrics(meter metric.Meter) (*GraphQLMetrics, error) {
	m := &GraphQLMetrics{}

	counters := []struct {
		dst        *metric.Int64Counter
		name, help string
	}{
		{&m.requestCounter, "graphql.requests.total", "GraphQL requests served"},
		{&m.errorCounter, "graphql.errors.total", "GraphQL requests whose response carried errors"},
		{&m.batchFlushes, "graphql.batch.flushes", "Consolidated relationship fetches"},
		{&m.batchQueriesSaved, "graphql.batch.queries_saved", "Per-parent statements avoided by batching"},
		{&m.batchSkipped, "graphql.batch.skipped", "Relationship resolutions that bypassed batching"},
		{&m.batchFailures, "graphql.batch.failures", "Consolidated fetches that failed or were cancelled"},
		{&m.cardinalityViolations, "graphql.batch.cardinality_violations", "Single-valued relationships that matched several rows"},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.help))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		*c.dst = inst
	}

	histograms := []struct {
		dst        *metric.Int64Histogram
		name, help string
	}{
		{&m.batchParentCount, "graphql.batch.parent_count", "Parent keys in one consolidated fetch"},
		{&m.batchResultRows, "graphql.batch.result_rows", "Rows returned by one consolidated fetch"},
	}
	for _, h := range histograms {
		inst, err := meter.Int64Histogram(h.name, metric.WithDescription(h.help))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", h.name, err)
		}
		*h.dst = inst
	}

	var err error
	if m.requestDuration, err = meter.Float64Histogram("graphql.request.duration",
		metric.WithDescription("GraphQL request latency"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create graphql.request.duration: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter("graphql.requests.active",
		metric.WithDescription("GraphQL requests in flight")); err != nil {
		return nil, fmt.Errorf("create graphql.requests.active: %w", err)
	}
	return m, nil
}

// RecordRequest counts one request. Errored requests are also counted on
// graphql.errors.total, keyed by operation type only.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	op := attribute.String("operation_type", operationType)
	attrs := metric.WithAttributes(op, attribute.Bool("has_errors", hasErrors))
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(op))
	}
}

// RecordBatchFlush records one consolidated fetch. queries is the number of
// SQL statements the fetch needed after IN-list chunking.
func (m *GraphQLMetrics) RecordBatchFlush(ctx context.Context, relationType string, parents, rows, queries int) {
	attrs := metric.WithAttributes(attribute.String("relation_type", relationType))
	m.batchFlushes.Add(ctx, 1, attrs)
	m.batchParentCount.Record(ctx, int64(parents), attrs)
	m.batchResultRows.Record(ctx, int64(rows), attrs)
	if saved := parents - queries; saved > 0 {
		m.batchQueriesSaved.Add(ctx, int64(saved), attrs)
	}
}

func (m *GraphQLMetrics) RecordBatchFailure(ctx context.Context, relationType, reason string) {
	m.batchFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_type", relationType),
		attribute.String("reason", reason),
	))
}

func (m *GraphQLMetrics) RecordBatchSkipped(ctx context.Context, relationType, reason string) {
	m.batchSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_type", relationType),
		attribute.String("reason", reason),
	))
}

func (m *GraphQLMetrics) RecordCardinalityViolation(ctx context.Context, relationType string) {
	m.cardinalityViolations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

// IncrementActiveRequests marks a request as in flight.
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests marks an in-flight request as finished.
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics is InitGraphQLMetrics with a startup log line.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	m, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	logger.Info("GraphQL metrics initialized")
	return m, nil
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics returns ctx carrying metrics.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext returns the metrics stored in ctx, or nil.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	m, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return m
}
