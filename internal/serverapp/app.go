// Package serverapp wires configuration, telemetry, the database and the
// schema refresh manager into one HTTP server lifecycle.
package serverapp

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"

	"relgraph/internal/config"
	"relgraph/internal/logging"
	"relgraph/internal/observability"
	"relgraph/internal/schemarefresh"
)

// App owns every runtime resource of the server.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	database       string
	databaseSource string
	dsnPresent     bool

	telemetry telemetry
	db        *sql.DB
	manager   *schemarefresh.Manager
	handler   http.Handler
	srv       *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// telemetry groups the optional OpenTelemetry providers and instruments.
type telemetry struct {
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	graphql        *observability.GraphQLMetrics
	schemaRefresh  *observability.SchemaRefreshMetrics
	security       *observability.SecurityMetrics
}

// New validates the database target and returns an uninitialized App.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	database, source, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:            cfg,
		logger:         logger,
		database:       database,
		databaseSource: source,
		dsnPresent:     strings.TrimSpace(cfg.Database.ConnectionString) != "",
	}, nil
}

// AttachLoggerProvider hands the OTLP log provider to the app so it is
// flushed last during shutdown.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler once Init has run.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
