package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "relgraph/resolver"

func startResolverSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// finishResolverSpan ends span, tagging it with the outcome of the step.
func finishResolverSpan(span trace.Span, err error) {
	outcome := attribute.String("graphql.resolver.outcome", "success")
	if err != nil {
		outcome = attribute.String("graphql.resolver.outcome", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(outcome)
	span.End()
}
