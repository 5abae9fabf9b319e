package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/internal/session"
)

func TestStandardExecutor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, []byte("ada")).AddRow(2, nil))

	rows, err := QueryMaps(context.Background(), NewStandardExecutor(db), "SELECT id, name FROM users")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.Equal(t, []byte("ada"), rows[0]["name"])
	assert.Nil(t, rows[1]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_NilHandle(t *testing.T) {
	_, err := NewStandardExecutor(nil).QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestQueryMaps_EmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	rows, err := QueryMaps(context.Background(), NewStandardExecutor(db), "SELECT id FROM users")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestQueryMaps_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectQuery("SELECT").WillReturnError(boom)
	_, err = QueryMaps(context.Background(), NewStandardExecutor(db), "SELECT id FROM users")
	assert.ErrorIs(t, err, boom)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).RowError(0, boom))
	_, err = QueryMaps(context.Background(), NewStandardExecutor(db), "SELECT id FROM users")
	assert.ErrorIs(t, err, boom)
}

func TestSessionExecutor(t *testing.T) {
	shared, sharedMock, err := sqlmock.New()
	require.NoError(t, err)
	defer shared.Close()
	pinned, pinnedMock, err := sqlmock.New()
	require.NoError(t, err)
	defer pinned.Close()

	exec := NewSessionExecutor(shared)

	sharedMock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	_, err = QueryMaps(context.Background(), exec, "SELECT 1")
	require.NoError(t, err)

	s := session.New(pinned)
	defer s.Close()
	pinnedMock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	_, err = QueryMaps(session.NewContext(context.Background(), s), exec, "SELECT 2")
	require.NoError(t, err)

	assert.NoError(t, sharedMock.ExpectationsWereMet())
	assert.NoError(t, pinnedMock.ExpectationsWereMet())
}
