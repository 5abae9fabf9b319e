// Package middleware applies cross-cutting HTTP policies: request logging,
// authentication, CORS, GraphQL metrics and tracing, and request sessions.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"relgraph/internal/logging"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware tags each request with an ID (the caller's, or a fresh
// UUID), stores a request logger in the context and logs the outcome at a
// level chosen by status class.
func LoggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			log := logger.WithRequestID(id).WithFields(slog.String("component", "http"))
			ctx := logging.WithRequestIDContext(logging.WithLogger(r.Context(), log), id)
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("http.request_id", id))

			req := []any{slog.String("method", r.Method), slog.String("path", r.URL.Path)}
			log.Debug("request started", append(req, slog.String("remote_addr", r.RemoteAddr))...)

			rec := newStatusRecorder(w, false)
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			log.Log(ctx, statusLevel(rec.status), "request completed", append(req,
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", elapsed),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
			)...)
		})
	}
}

func statusLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
