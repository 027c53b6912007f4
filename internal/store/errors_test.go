package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airwatch/internal/airquality"
)

func TestSQLiteBusyIsContention(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT OR IGNORE INTO measurements").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	s := NewSQLiteStore(db)
	_, err = s.InsertIfAbsent(context.Background(), airquality.Measurement{StationUID: 1, AQI: 10, Timestamp: ts(1, 0)})
	assert.ErrorIs(t, err, airquality.ErrStorageContention)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteAlertLockedIsContention(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(3, "SPIKE", "msg", 150).
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrLocked})

	s := NewSQLiteStore(db)
	err = s.InsertAlert(context.Background(), airquality.Alert{StationUID: 3, Type: airquality.AlertSpike, Message: "msg", AQIValue: 150})
	assert.ErrorIs(t, err, airquality.ErrStorageContention)
}

func TestSQLiteCantOpenIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT m.station_uid").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrCantOpen})

	s := NewSQLiteStore(db)
	_, err = s.LatestPerStation(context.Background())
	assert.ErrorIs(t, err, airquality.ErrStorageUnavailable)
}

func TestSQLiteHistoryScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"station_uid", "aqi", "pm25", "timestamp"}).
		AddRow(5, 120, 44.1, "2024-03-10T12:00:00").
		AddRow(5, 90, 30.0, "2024-03-10T11:00:00")
	mock.ExpectQuery("FROM measurements").WithArgs(5, 2).WillReturnRows(rows)

	s := NewSQLiteStore(db)
	hist, err := s.History(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 120, hist[0].AQI)
	assert.True(t, hist[0].Timestamp.Equal(ts(12, 0)))
}

func TestClassifyPostgres(t *testing.T) {
	err := classifyPostgres("op", &pgconn.PgError{Code: "55P03"})
	assert.ErrorIs(t, err, airquality.ErrStorageContention)

	err = classifyPostgres("op", &pgconn.PgError{Code: "08006"})
	assert.ErrorIs(t, err, airquality.ErrStorageUnavailable)

	err = classifyPostgres("op", errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, err, airquality.ErrStorageUnavailable)

	err = classifyPostgres("op", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, airquality.ErrStorageUnavailable)

	assert.NoError(t, classifyPostgres("op", nil))
}
