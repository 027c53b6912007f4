package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airwatch/internal/airquality"
)

func ts(hour, minute int) time.Time {
	return time.Date(2024, 3, 10, hour, minute, 0, 0, time.Local)
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "air.db")
	s, err := OpenSQLite(context.Background(), path, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]airquality.Store {
	return map[string]airquality.Store{
		"memory": NewMemoryStore(),
		"sqlite": openTestSQLite(t),
	}
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := airquality.Measurement{StationUID: 1, AQI: 80, PM25: 20.5, Timestamp: ts(10, 0)}

			inserted, err := s.InsertIfAbsent(ctx, m)
			require.NoError(t, err)
			assert.True(t, inserted)

			m.AQI = 999
			inserted, err = s.InsertIfAbsent(ctx, m)
			require.NoError(t, err)
			assert.False(t, inserted)

			hist, err := s.History(ctx, 1, 10)
			require.NoError(t, err)
			require.Len(t, hist, 1)
			assert.Equal(t, 80, hist[0].AQI, "duplicates must never overwrite")
		})
	}
}

func TestHistoryAndLatest(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, aqi := range []int{50, 60, 70, 80} {
				_, err := s.InsertIfAbsent(ctx, airquality.Measurement{StationUID: 7, AQI: aqi, Timestamp: ts(8+i, 0)})
				require.NoError(t, err)
			}
			_, err := s.InsertIfAbsent(ctx, airquality.Measurement{StationUID: 9, AQI: 33, PM25: 7.5, Timestamp: ts(9, 30)})
			require.NoError(t, err)

			hist, err := s.History(ctx, 7, 3)
			require.NoError(t, err)
			require.Len(t, hist, 3)
			assert.Equal(t, []int{80, 70, 60}, []int{hist[0].AQI, hist[1].AQI, hist[2].AQI})
			assert.True(t, hist[0].Timestamp.Equal(ts(11, 0)))

			latest, err := s.LatestPerStation(ctx)
			require.NoError(t, err)
			require.Len(t, latest, 2)
			assert.Equal(t, 80, latest[7].AQI)
			assert.Equal(t, 33, latest[9].AQI)
			assert.InDelta(t, 7.5, latest[9].PM25, 1e-9)

			none, err := s.History(ctx, 12345, 5)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestAlertsAndTrend(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.InsertAlert(ctx, airquality.Alert{StationUID: 1, Type: airquality.AlertSpike, Message: "first", AQIValue: 150}))
			require.NoError(t, s.InsertAlert(ctx, airquality.Alert{StationUID: 2, Type: airquality.AlertSpike, Message: "second", AQIValue: 180}))

			alerts, err := s.RecentAlerts(ctx, 1)
			require.NoError(t, err)
			require.Len(t, alerts, 1)
			assert.Equal(t, "second", alerts[0].Message)
			assert.Equal(t, airquality.AlertSpike, alerts[0].Type)
			assert.False(t, alerts[0].CreatedAt.IsZero())

			for _, m := range []airquality.Measurement{
				{StationUID: 1, AQI: 40, Timestamp: ts(6, 0)},
				{StationUID: 2, AQI: 60, Timestamp: ts(6, 30)},
				{StationUID: 1, AQI: 100, Timestamp: ts(7, 0)},
			} {
				_, err := s.InsertIfAbsent(ctx, m)
				require.NoError(t, err)
			}

			trend, err := s.HourlyTrend(ctx, ts(0, 0))
			require.NoError(t, err)
			require.Len(t, trend, 2)
			assert.Equal(t, airquality.HourlyAverage{Hour: 6, AvgAQI: 50, Samples: 2}, trend[0])
			assert.Equal(t, airquality.HourlyAverage{Hour: 7, AvgAQI: 100, Samples: 1}, trend[1])

			later, err := s.HourlyTrend(ctx, ts(6, 45))
			require.NoError(t, err)
			require.Len(t, later, 1)
			assert.Equal(t, 7, later[0].Hour)
		})
	}
}

func TestMemoryStoreKeepsEveryReading(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := s.InsertIfAbsent(ctx, airquality.Measurement{StationUID: 1, AQI: i, Timestamp: ts(i, 0)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	// The oldest reading is still a duplicate after newer ones arrive.
	ok, err := s.InsertIfAbsent(ctx, airquality.Measurement{StationUID: 1, AQI: 99, Timestamp: ts(0, 0)})
	require.NoError(t, err)
	assert.False(t, ok)

	hist, err := s.History(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, 0, hist[2].AQI)
}

func TestMigrationSourcesAreVersioned(t *testing.T) {
	for _, dir := range []string{"migrations/sqlite", "migrations/postgres"} {
		t.Run(dir, func(t *testing.T) {
			src, err := iofs.New(migrationsFS, dir)
			require.NoError(t, err)
			defer src.Close()

			first, err := src.First()
			require.NoError(t, err)
			assert.Equal(t, uint(1), first)

			up, _, err := src.ReadUp(first)
			require.NoError(t, err)
			body, err := io.ReadAll(up)
			up.Close()
			require.NoError(t, err)
			assert.Contains(t, string(body), "UNIQUE (station_uid, timestamp)")

			down, _, err := src.ReadDown(first)
			require.NoError(t, err)
			down.Close()
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mongo"})
	assert.Error(t, err)

	s, err := Open(context.Background(), Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}

func TestClosedSQLiteIsUnavailable(t *testing.T) {
	s := openTestSQLite(t)
	require.NoError(t, s.Close())

	_, err := s.InsertIfAbsent(context.Background(), airquality.Measurement{StationUID: 1, AQI: 1, Timestamp: ts(1, 0)})
	assert.ErrorIs(t, err, airquality.ErrStorageUnavailable)
}
