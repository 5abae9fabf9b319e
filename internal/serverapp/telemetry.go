package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"relgraph/internal/config"
	"relgraph/internal/logging"
	"relgraph/internal/observability"
)

func otelConfig(cfg *config.Config) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLP:             cfg.Observability.OTLP,
	}
}

// InitLogger builds the process logger. With log export enabled the logger
// also fans out to an OTLP log provider, which the caller must shut down.
func InitLogger(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logger.Info("initializing OpenTelemetry logging",
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
	)
	provider, err := observability.InitLoggerProvider(ctx, otelConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OpenTelemetry logging: %w", err)
	}

	loggerCfg.LoggerProvider = provider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	return logger, provider, nil
}

func initTelemetry(ctx context.Context, cfg *config.Config, logger *logging.Logger) (telemetry, error) {
	var tel telemetry

	if cfg.Observability.MetricsEnabled {
		mp, err := observability.InitMeterProvider(otelConfig(cfg))
		if err != nil {
			return tel, fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
		}
		tel.meterProvider = mp

		if tel.graphql, err = observability.InitMetrics(logger.Logger); err != nil {
			return tel, err
		}
		if tel.schemaRefresh, err = observability.InitSchemaRefreshMetrics(logger.Logger); err != nil {
			return tel, err
		}
		if tel.security, err = observability.InitSecurityMetrics(); err != nil {
			return tel, err
		}
		logger.Info("OpenTelemetry metrics initialized",
			slog.String("service_name", cfg.Observability.ServiceName),
		)
	}

	if cfg.Observability.TracingEnabled {
		tp, err := observability.InitTracerProvider(ctx, otelConfig(cfg))
		if err != nil {
			if tel.meterProvider != nil {
				_ = tel.meterProvider.Shutdown(context.Background(), logger.Logger)
			}
			return tel, fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
		}
		tel.tracerProvider = tp
		logger.Info("OpenTelemetry tracing initialized",
			slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
			slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
		)
	}
	return tel, nil
}
