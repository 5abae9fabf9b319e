package serverapp

import (
	"context"
	"log/slog"

	"relgraph/internal/logging"
)

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack struct {
	names []string
	fns   []func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.names = append(s.names, name)
	s.fns = append(s.fns, fn)
}

func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) {
	for i := len(s.fns) - 1; i >= 0; i-- {
		logger.Info("shutting down", slog.String("component", s.names[i]))
		if err := s.fns[i](ctx); err != nil {
			logger.Warn("cleanup error",
				slog.String("component", s.names[i]),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Shutdown releases everything Init acquired. Later calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		cleanup.run(ctx, a.logger)
	})
	return nil
}
