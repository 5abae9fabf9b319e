package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_QueryPinsConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))

	s := New(db)
	for _, q := range []string{"SELECT 1", "SELECT 2"} {
		rows, err := s.QueryContext(context.Background(), q)
		require.NoError(t, err)
		require.True(t, rows.Next())
		require.NoError(t, rows.Close())
	}
	assert.Equal(t, 1, db.Stats().OpenConnections)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_QueryAfterClose(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	require.NoError(t, s.Close())
	_, err = s.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_RunBackground(t *testing.T) {
	s := New(nil)
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		s.Defer(Task{Name: "count", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}})
	}
	s.Defer(Task{Name: "noop"})
	assert.Equal(t, 3, s.Pending())

	require.NoError(t, s.RunBackground(context.Background(), nil))
	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, 0, s.Pending())

	// The queue is drained; a second run does nothing.
	require.NoError(t, s.RunBackground(context.Background(), nil))
	assert.Equal(t, int32(3), ran.Load())
}

func TestSession_RunBackgroundLogsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	boom := errors.New("boom")

	s := New(nil)
	s.Defer(Task{Name: "audit", Run: func(ctx context.Context) error { return boom }})

	err := s.RunBackground(context.Background(), logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "background task failed")
	assert.Contains(t, buf.String(), "task=audit")
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := New(nil)
	got, ok := FromContext(NewContext(context.Background(), s))
	require.True(t, ok)
	assert.Same(t, s, got)
}
