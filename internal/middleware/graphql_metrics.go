package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"relgraph/internal/observability"
)

// GraphQLMetricsMiddleware records request counts, durations and errors per
// operation type, and makes metrics available to the batch engine.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GraphiQL page loads are not operations.
			query, operationName := readGraphQLRequest(r)
			if r.Method != http.MethodPost && query == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			r = r.WithContext(ctx)
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			operationType := "unknown"
			if info, err := analyzeOperation(query, operationName); err == nil && info != nil && info.Type != "" {
				operationType = info.Type
			}

			recorder := newStatusRecorder(w, true)
			next.ServeHTTP(recorder, r)

			hasErrors := recorder.status >= 400 || responseHasGraphQLErrors(recorder.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, operationType)
		})
	}
}

func responseHasGraphQLErrors(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
