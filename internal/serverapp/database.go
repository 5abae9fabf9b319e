package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v5"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"relgraph/internal/config"
	"relgraph/internal/logging"
)

const maxConnectRetryInterval = 30 * time.Second

type statsRegistration interface{ Unregister() error }

// connectDB opens the pool, instrumented with otelsql when metrics or
// tracing is on.
func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, statsRegistration, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	obs := cfg.Observability
	if !obs.MetricsEnabled && !obs.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		return db, nil, err
	}

	opts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
	if obs.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
		if obs.SQLCommenterEnabled {
			opts = append(opts, otelsql.WithSQLCommenter(true))
		}
	} else if obs.SQLCommenterEnabled {
		logger.Debug("sqlcommenter needs tracing; statements are sent without trace comments")
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var stats statsRegistration
	if obs.MetricsEnabled {
		reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		} else {
			stats = reg
		}
	}
	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", obs.MetricsEnabled),
		slog.Bool("tracing", obs.TracingEnabled),
		slog.Bool("sqlcommenter", obs.SQLCommenterEnabled && obs.TracingEnabled),
	)
	return db, stats, nil
}

// configureDatabase applies pool limits and waits for the server to answer.
func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	pool := cfg.Database.Pool
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg.Database, logger, db); err != nil {
		return err
	}
	logger.Info("connected to database",
		slog.Int("pool_max_open", pool.MaxOpen),
		slog.Int("pool_max_idle", pool.MaxIdle),
		slog.Duration("pool_max_lifetime", pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings until the database answers, backing off
// exponentially up to ConnectionTimeout. A zero timeout pings once.
func waitForDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger, db *sql.DB) error {
	if cfg.ConnectionTimeout <= 0 {
		return db.PingContext(ctx)
	}

	policy := backoff.NewExponentialBackOff()
	if cfg.ConnectionRetryInterval > 0 {
		policy.InitialInterval = cfg.ConnectionRetryInterval
	}
	policy.MaxInterval = maxConnectRetryInterval

	attempts := 0
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			attempts++
			return struct{}{}, db.PingContext(ctx)
		},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(cfg.ConnectionTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("database not ready, retrying",
				slog.Int("attempt", attempts),
				slog.Duration("retry_in", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("database not available after %v: %w", cfg.ConnectionTimeout, err)
	}
	if attempts > 1 {
		logger.Info("database connection established", slog.Int("attempts", attempts))
	}
	return nil
}
