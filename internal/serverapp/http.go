package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"relgraph/internal/config"
	"relgraph/internal/logging"
	"relgraph/internal/middleware"
	"relgraph/internal/observability"
	"relgraph/internal/schemarefresh"
)

const schemaReloadTimeout = 15 * time.Second

var knownRoutes = map[string]bool{
	"/": true, "/graphql": true, "/health": true, "/metrics": true, "/admin/reload-schema": true,
}

func startSchemaManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, database string, metrics *observability.SchemaRefreshMetrics) (*schemarefresh.Manager, context.CancelFunc, error) {
	manager, err := schemarefresh.NewManager(ctx, schemarefresh.Config{
		DB:            db,
		DatabaseName:  database,
		Logger:        logger,
		Metrics:       metrics,
		MinInterval:   cfg.Schema.RefreshMinInterval,
		MaxInterval:   cfg.Schema.RefreshMaxInterval,
		GraphiQL:      cfg.Server.GraphiQLEnabled,
		Filters:       cfg.Schema.Filters,
		TypeOverrides: cfg.Schema.TypeOverrides,
		Naming:        cfg.Schema.Naming,
		ListTables:    cfg.Schema.ListTables,
		Batching:      cfg.Batching.Enabled,
		MaxParents:    cfg.Batching.MaxInClause,
	})
	if err != nil {
		return nil, nil, err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	manager.Start(loopCtx)
	return manager, cancel, nil
}

func oidcConfig(cfg *config.Config, metrics *observability.SecurityMetrics) middleware.OIDCAuthConfig {
	auth := cfg.Server.Auth
	return middleware.OIDCAuthConfig{
		Enabled:       auth.OIDCEnabled,
		IssuerURL:     auth.OIDCIssuerURL,
		Audience:      auth.OIDCAudience,
		ClockSkew:     auth.OIDCClockSkew,
		SkipTLSVerify: auth.OIDCSkipTLSVerify,
		CAFile:        auth.OIDCCAFile,
		Metrics:       metrics,
	}
}

// buildHandler assembles the routes and their middleware:
//
//	logging -> CORS -> otelhttp -> mux
//	/graphql: OIDC -> session -> GraphQL tracing -> GraphQL metrics -> active snapshot
func buildHandler(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, manager *schemarefresh.Manager, tel telemetry) (http.Handler, error) {
	var graphqlHandler http.Handler = manager.Handler()
	if tel.graphql != nil {
		graphqlHandler = middleware.GraphQLMetricsMiddleware(tel.graphql)(graphqlHandler)
	}
	graphqlHandler = middleware.GraphQLTracingMiddleware()(graphqlHandler)
	graphqlHandler = middleware.SessionMiddleware(db)(graphqlHandler)

	auth, err := middleware.OIDCAuthMiddleware(ctx, oidcConfig(cfg, tel.security), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OIDC auth: %w", err)
	}
	graphqlHandler = auth(graphqlHandler)

	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	if cfg.Server.Admin.SchemaReloadEnabled {
		adminHandler, err := buildAdminHandler(ctx, cfg, logger, manager, tel.security)
		if err != nil {
			return nil, err
		}
		mux.Handle("/admin/reload-schema", adminHandler)
	}

	var handler http.Handler = mux
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
	}
	if cfg.Server.CORS.Enabled {
		handler = middleware.CORSMiddleware(cfg.Server.CORS)(handler)
	}
	return middleware.LoggingMiddleware(logger)(handler), nil
}

// buildAdminHandler protects schema reloads with the admin token when one is
// configured and with OIDC otherwise.
func buildAdminHandler(ctx context.Context, cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager, metrics *observability.SecurityMetrics) (http.Handler, error) {
	reload := schemaReloadHandler(manager, metrics)
	if cfg.Server.Admin.AuthToken != "" {
		auth, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token:   cfg.Server.Admin.AuthToken,
			Metrics: metrics,
		})
		if err != nil {
			return nil, err
		}
		return auth(reload), nil
	}
	if !cfg.Server.Auth.OIDCEnabled {
		return nil, fmt.Errorf("schema reload endpoint requires server.admin.auth_token or OIDC")
	}
	auth, err := middleware.OIDCAuthMiddleware(ctx, oidcConfig(cfg, metrics), logger)
	if err != nil {
		return nil, err
	}
	return auth(reload), nil
}

func httpRootSpanName(r *http.Request) string {
	route := r.URL.Path
	if !knownRoutes[route] {
		route = "/*"
	}
	return r.Method + " " + route
}

func buildServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := db.PingContext(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health check failed",
				slog.String("check", "database"),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Database: "failed"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Database: "ok"})
	}
}

func schemaReloadHandler(manager *schemarefresh.Manager, metrics *observability.SecurityMetrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		logger := logging.FromContext(r.Context())
		auth, authenticated := middleware.AuthFromContext(r.Context())
		logger.Info("schema reload requested",
			slog.String("subject", auth.Subject),
			slog.String("issuer", auth.Issuer),
		)

		ctx, cancel := context.WithTimeout(r.Context(), schemaReloadTimeout)
		defer cancel()
		err := manager.RefreshNowContext(ctx)
		if metrics != nil {
			metrics.RecordAdminEndpointAccess(r.Context(), "schema_reload", authenticated, err == nil)
		}
		if err != nil {
			logger.Error("schema reload failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "schema reload failed"})
			return
		}

		snapshot := manager.CurrentSnapshot()
		logger.Info("schema reloaded", slog.String("fingerprint", snapshot.Fingerprint))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "fingerprint": snapshot.Fingerprint})
	})
}
