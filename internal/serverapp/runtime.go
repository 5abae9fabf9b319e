package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// Start serves HTTP in the background. Errors other than a clean shutdown
// arrive on the returned channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, errors.New("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	errs := make(chan error, 1)
	srv := a.srv
	logAttrs := []any{
		slog.String("address", srv.Addr),
		slog.String("graphql_endpoint", "/graphql"),
		slog.String("health_endpoint", "/health"),
		slog.Bool("graphiql", a.cfg.Server.GraphiQLEnabled),
		slog.Bool("batching", a.cfg.Batching.Enabled),
		slog.String("log_level", a.cfg.Observability.Logging.Level),
	}
	if a.cfg.Observability.MetricsEnabled {
		logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
	}
	if a.cfg.Server.Admin.SchemaReloadEnabled {
		logAttrs = append(logAttrs, slog.String("admin_endpoint", "/admin/reload-schema"))
	}
	a.logger.Info("server starting", logAttrs...)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	a.serverErrors = errs
	a.started = true
	return errs, nil
}

// WaitForStop blocks until a signal arrives on stop or the server fails.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", errors.New("both stop and serverErrors channels are nil")
	}

	select {
	case err := <-serverErrors:
		if err == nil {
			return "server_error", errors.New("server stopped unexpectedly")
		}
		return "server_error", fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return "signal", nil
	}
}
