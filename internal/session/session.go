// Package session scopes database access to a single GraphQL request.
//
// A Session pins one pooled connection for the lifetime of the request and
// collects background tasks that run once the response has been written.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by queries issued after the session was closed.
var ErrClosed = errors.New("session is closed")

// Task is a unit of background work queued during a request.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Session owns one connection and a background task queue.
type Session struct {
	db *sql.DB

	mu     sync.Mutex
	conn   *sql.Conn
	closed bool
	tasks  []Task
}

// New creates a session over db. The connection is acquired on first query.
func New(db *sql.DB) *Session {
	return &Session{db: db}
}

// QueryContext runs query on the session's pinned connection.
// Callers must drain and close the returned rows before issuing another query.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.QueryContext(ctx, query, args...)
}

func (s *Session) connection(ctx context.Context) (*sql.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.conn != nil {
		return s.conn, nil
	}
	if s.db == nil {
		return nil, sql.ErrConnDone
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// Defer queues task to run after the response is written.
func (s *Session) Defer(task Task) {
	if task.Run == nil {
		return
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
}

// Pending returns the number of queued background tasks.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close releases the pinned connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// RunBackground drains the task queue, running tasks concurrently, and waits
// for them. Every task error is logged; the first one is returned.
func (s *Session) RunBackground(ctx context.Context, logger *slog.Logger) error {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	if len(tasks) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			if err := task.Run(gctx); err != nil {
				logger.Error("background task failed",
					slog.String("task", task.Name),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("background task %s: %w", task.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type sessionKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the request session, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
