package middleware

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"relgraph/internal/logging"
	"relgraph/internal/session"
)

// SessionMiddleware opens one data-access session per request. The session
// is released once the response is written, and the background tasks queued
// on it run afterwards without holding the response.
func SessionMiddleware(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.New(db)
			ctx := session.NewContext(r.Context(), sess)

			next.ServeHTTP(w, r.WithContext(ctx))

			logger := logging.FromContext(ctx)
			if err := sess.Close(); err != nil {
				logger.Warn("failed to release request session", slog.String("error", err.Error()))
			}
			if sess.Pending() == 0 {
				return
			}
			go func() {
				_ = sess.RunBackground(context.WithoutCancel(ctx), logger.Logger)
			}()
		})
	}
}
