package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"relgraph/internal/logging"
	"relgraph/internal/observability"
)

const defaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig guards the admin endpoints with a shared token.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
	Metrics    *observability.SecurityMetrics
}

// AdminTokenAuthMiddleware rejects requests whose admin header does not
// carry the configured token.
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = defaultAdminTokenHeader
	}
	expected := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			provided := sha256.Sum256([]byte(strings.TrimSpace(r.Header.Get(headerName))))
			authenticated := subtle.ConstantTimeCompare(provided[:], expected[:]) == 1
			if !authenticated {
				if cfg.Metrics != nil {
					cfg.Metrics.RecordAuthRejected(ctx, r.URL.Path, "admin_token", "token_mismatch")
				}
				logging.FromContext(ctx).Warn("admin token rejected",
					slog.String("endpoint", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeUnauthorized(w, "", "unauthorized")
				return
			}

			if cfg.Metrics != nil {
				cfg.Metrics.RecordAuthAccepted(ctx, r.URL.Path, "admin_token", "admin_token")
			}
			ctx = WithAuthContext(ctx, AuthContext{
				Subject: "admin_token",
				Issuer:  "admin_token",
				Claims:  map[string]interface{}{"auth_method": "admin_token"},
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
