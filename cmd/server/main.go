package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"relgraph/internal/config"
	"relgraph/internal/serverapp"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := config.NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Fprintf(stdout, "relgraph %s (%s)\n", Version, Commit)
		return nil
	}

	cfg, err := config.LoadFlags(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}
	if err := checkConfig(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	logger, loggerProvider, err := serverapp.InitLogger(ctx, cfg)
	if err != nil {
		return err
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(ctx, logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	if err := app.Init(ctx); err != nil {
		return err
	}
	serverErrors, err := app.Start()
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	_, waitErr := app.WaitForStop(stop, serverErrors)

	logger.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	shutdownErr := app.Shutdown(shutdownCtx)
	cancel()

	if err := errors.Join(waitErr, shutdownErr); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

// checkConfig logs every validation finding and fails on errors.
func checkConfig(cfg *config.Config) error {
	result := cfg.Validate()
	for _, w := range result.Warnings {
		slog.Warn("configuration warning", slog.String("field", w.Field), slog.String("message", w.Message))
	}
	if !result.HasErrors() {
		return nil
	}
	for _, e := range result.Errors {
		slog.Error("configuration error",
			slog.String("field", e.Field),
			slog.String("message", e.Message),
			slog.String("hint", e.Hint),
		)
	}
	return fmt.Errorf("configuration validation failed: %s", result.Error())
}
