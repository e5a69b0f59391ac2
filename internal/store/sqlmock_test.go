package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/marketdata"
)

// newMockedStore builds a sqlStore around a go-sqlmock driver, bypassing
// migrate(): these tests assert the exact statement shape UpsertBars
// sends down the wire, independent of any real database engine.
func newMockedStore(t *testing.T) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &sqlStore{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func TestUpsertBarsRunsOneUpsertPerBarInsideATransaction(t *testing.T) {
	s, mock := newMockedStore(t)
	ts := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO prices")).
		WithArgs("ACME", ts, 10.0, 11.0, 9.0, 10.5, 1000.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpsertBars(context.Background(), marketdata.Series{
		{Symbol: "ACME", TS: ts, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBarsRollsBackOnExecFailure(t *testing.T) {
	s, mock := newMockedStore(t)
	ts := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO prices")).WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	err := s.UpsertBars(context.Background(), marketdata.Series{
		{Symbol: "ACME", TS: ts, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
