package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"relgraph/internal/logging"
)

// GraphQLTracingMiddleware wraps each GraphQL operation in a span carrying
// its name, type and shape, and adds the trace ids to the request logger.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer("relgraph/graphql")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := analyzeOperation(readGraphQLRequest(r))
			if info == nil && err == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := tracer.Start(r.Context(), "graphql.request")
			defer span.End()

			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				reqLogger := logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
				ctx = logging.WithLogger(ctx, reqLogger)
			}

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "invalid GraphQL document")
			} else if span.IsRecording() {
				span.SetAttributes(
					attribute.String("graphql.operation.type", info.Type),
					attribute.Int("graphql.query.field_count", info.FieldCount),
					attribute.Int("graphql.query.depth", info.Depth),
					attribute.Int("graphql.query.variable_count", info.Variables),
				)
				if info.Name != "" {
					span.SetAttributes(attribute.String("graphql.operation.name", info.Name))
				}
			}

			recorder := newStatusRecorder(w, false)
			next.ServeHTTP(recorder, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.response.status_code", recorder.status))
		})
	}
}
