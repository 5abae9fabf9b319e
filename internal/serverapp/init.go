package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Init acquires every runtime resource. On failure everything acquired so
// far is released again. Calling Init twice is a no-op.
func (a *App) Init(ctx context.Context) error {
	return a.initialize(ctx, func(ctx context.Context) (*sql.DB, func() error, error) {
		a.logger.Info("connecting to database",
			slog.String("host", a.cfg.Database.Host),
			slog.Int("port", a.cfg.Database.Port),
			slog.String("database", a.database),
			slog.String("database_source", a.databaseSource),
			slog.Bool("dsn_present", a.dsnPresent),
		)
		db, stats, err := connectDB(a.cfg, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closeDB := func() error {
			if stats != nil {
				if err := stats.Unregister(); err != nil {
					a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
				}
			}
			return db.Close()
		}
		if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
			_ = closeDB()
			return nil, nil, fmt.Errorf("failed to verify database connection: %w", err)
		}
		return db, closeDB, nil
	})
}

type openDBFunc func(ctx context.Context) (*sql.DB, func() error, error)

func (a *App) initialize(ctx context.Context, openDB openDBFunc) error {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		provider := a.loggerProvider
		cleanup.push("logger provider", func(ctx context.Context) error {
			return provider.Shutdown(ctx, a.logger.Logger)
		})
	}

	tel, err := initTelemetry(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	if tel.meterProvider != nil {
		cleanup.push("meter provider", func(ctx context.Context) error {
			return tel.meterProvider.Shutdown(ctx, a.logger.Logger)
		})
	}
	if tel.tracerProvider != nil {
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tel.tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	db, closeDB, err := openDB(ctx)
	if err != nil {
		return err
	}
	cleanup.push("database", func(context.Context) error { return closeDB() })

	manager, stopManager, err := startSchemaManager(ctx, a.cfg, a.logger, db, a.database, tel.schemaRefresh)
	if err != nil {
		return fmt.Errorf("failed to initialize schema refresh manager: %w", err)
	}
	cleanup.push("schema manager", func(ctx context.Context) error {
		stopManager()
		return manager.Wait(ctx)
	})

	handler, err := buildHandler(ctx, a.cfg, a.logger, db, manager, tel)
	if err != nil {
		return err
	}
	srv := buildServer(a.cfg, handler)
	cleanup.push("HTTP server", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})

	a.stateMu.Lock()
	a.telemetry = tel
	a.db = db
	a.manager = manager
	a.handler = handler
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
