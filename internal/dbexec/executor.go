// Package dbexec provides database query execution abstractions.
// Queries run on the request session's pinned connection when one is present.
package dbexec

import (
	"context"
	"database/sql"

	"relgraph/internal/session"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Columns() ([]string, error)
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Querier is satisfied by *sql.DB, *sql.Conn, *sql.Tx and *session.Session.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// QueryExecutor abstracts SQL execution so callers can swap in counting or session-aware behavior.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db Querier
}

// NewStandardExecutor creates an executor that runs queries directly against db.
func NewStandardExecutor(db Querier) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

// SessionExecutor prefers the session in the query context and falls back to a shared handle.
type SessionExecutor struct {
	fallback Querier
}

// NewSessionExecutor creates a session-aware executor.
func NewSessionExecutor(fallback Querier) *SessionExecutor {
	return &SessionExecutor{fallback: fallback}
}

func (e *SessionExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if s, ok := session.FromContext(ctx); ok {
		return s.QueryContext(ctx, query, args...)
	}
	if e.fallback == nil {
		return nil, sql.ErrConnDone
	}
	return e.fallback.QueryContext(ctx, query, args...)
}
