package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"relgraph/internal/logging"
	"relgraph/internal/observability"
)

const defaultClockSkew = 2 * time.Minute

// OIDCAuthConfig controls bearer token validation against an OIDC issuer.
type OIDCAuthConfig struct {
	Enabled       bool
	IssuerURL     string
	Audience      string
	ClockSkew     time.Duration
	SkipTLSVerify bool
	// CAFile adds a PEM bundle to the roots trusted for the issuer.
	CAFile  string
	Metrics *observability.SecurityMetrics
}

// TokenVerifier checks the signature, issuer and audience of a raw token.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*oidc.IDToken, error)
}

// OIDCAuthMiddleware discovers the issuer and validates Bearer tokens.
// A disabled config yields a pass-through middleware.
func OIDCAuthMiddleware(ctx context.Context, cfg OIDCAuthConfig, logger *logging.Logger) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	if cfg.SkipTLSVerify && logger != nil {
		logger.Warn("oidc tls verification is disabled; enable only for local development",
			slog.String("issuer", cfg.IssuerURL),
		)
	}

	client, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := oidc.NewProvider(context.WithValue(ctx, oauth2.HTTPClient, client), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	verifier := provider.Verifier(newOIDCVerifierConfig(cfg))
	return BearerAuthMiddleware(verifier, cfg), nil
}

// newOIDCVerifierConfig leaves time claims to validateTimeClaims so the
// configured skew applies.
func newOIDCVerifierConfig(cfg OIDCAuthConfig) *oidc.Config {
	return &oidc.Config{ClientID: cfg.Audience, SkipExpiryCheck: true}
}

func newOIDCHTTPClient(cfg OIDCAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("oidc ca file %s contains no certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig, Proxy: http.ProxyFromEnvironment},
		Timeout:   10 * time.Second,
	}, nil
}

// BearerAuthMiddleware validates the Bearer token of every request with
// verifier and attaches the resulting AuthContext.
func BearerAuthMiddleware(verifier TokenVerifier, cfg OIDCAuthConfig) func(http.Handler) http.Handler {
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = defaultClockSkew
	}
	metrics := cfg.Metrics

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			endpoint := r.URL.Path
			logger := logging.FromContext(ctx)

			reject := func(reason, message string, err error) {
				if metrics != nil {
					metrics.RecordAuthRejected(ctx, endpoint, "oidc", reason)
				}
				attrs := []any{
					slog.String("reason", reason),
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				}
				if err != nil {
					attrs = append(attrs, slog.String("error", err.Error()))
				}
				logger.Warn("authentication failed", attrs...)
				writeUnauthorized(w, "Bearer", message)
			}

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				reject("missing_token", "missing bearer token", nil)
				return
			}
			idToken, err := verifier.Verify(ctx, raw)
			if err != nil {
				reject("verification_failed", "invalid token", err)
				return
			}
			claims := map[string]interface{}{}
			if err := idToken.Claims(&claims); err != nil {
				reject("claims_parse_failed", "invalid token claims", err)
				return
			}
			if err := validateTimeClaims(claims, time.Now(), skew); err != nil {
				reject("time_validation_failed", "invalid token", err)
				return
			}

			auth := AuthContext{
				Subject:  idToken.Subject,
				Issuer:   idToken.Issuer,
				Audience: idToken.Audience,
				Claims:   claims,
			}
			if metrics != nil {
				metrics.RecordAuthAccepted(ctx, endpoint, "oidc", auth.Issuer)
			}
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", auth.Subject),
					attribute.String("auth.issuer", auth.Issuer),
					attribute.StringSlice("auth.audience", auth.Audience),
				)
			}
			logger.Debug("authentication successful",
				slog.String("subject", auth.Subject),
				slog.String("endpoint", endpoint),
			)
			next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, auth)))
		})
	}
}

// validateTimeClaims requires exp and honours nbf, both widened by skew.
func validateTimeClaims(claims map[string]interface{}, now time.Time, skew time.Duration) error {
	exp, ok := numericDate(claims["exp"])
	if !ok {
		return errors.New("token has no expiry")
	}
	if now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

func numericDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case json.Number:
		n, err := v.Int64()
		return time.Unix(n, 0), err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return time.Unix(n, 0), err == nil
	default:
		return time.Time{}, false
	}
}
