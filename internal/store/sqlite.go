package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/logger"
)

// createdAtLayout is SQLite's CURRENT_TIMESTAMP format (UTC).
const createdAtLayout = "2006-01-02 15:04:05"

// SQLiteStore persists measurements in a WAL-mode SQLite database.
// One writer at a time, readers proceed concurrently.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path, enables WAL
// and applies the embedded migrations.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if busyTimeout <= 0 {
		busyTimeout = 30 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, classifySQLite("open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classifySQLite("ping sqlite", err)
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("store: sqlite ready at %s (busy timeout %s)", path, busyTimeout)
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore wraps an already migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func migrateSQLite(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m.Close would close db as well; the handle stays owned by the store.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite migration failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, m airquality.Measurement) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO measurements (station_uid, aqi, pm25, timestamp) VALUES (?, ?, ?, ?)`,
		m.StationUID, m.AQI, m.PM25, airquality.FormatTimestamp(m.Timestamp))
	if err != nil {
		return false, classifySQLite("insert measurement", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classifySQLite("insert measurement", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) LatestPerStation(ctx context.Context) (map[int]airquality.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.station_uid, m.aqi, m.pm25, m.timestamp
		FROM measurements m
		JOIN (
			SELECT station_uid, MAX(timestamp) AS ts
			FROM measurements
			GROUP BY station_uid
		) latest ON latest.station_uid = m.station_uid AND latest.ts = m.timestamp`)
	if err != nil {
		return nil, classifySQLite("latest per station", err)
	}
	defer rows.Close()

	out := make(map[int]airquality.Measurement)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, classifySQLite("latest per station", err)
		}
		out[m.StationUID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite("latest per station", err)
	}
	return out, nil
}

func (s *SQLiteStore) History(ctx context.Context, uid int, limit int) ([]airquality.Measurement, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT station_uid, aqi, pm25, timestamp
		FROM measurements
		WHERE station_uid = ?
		ORDER BY timestamp DESC
		LIMIT ?`, uid, limit)
	if err != nil {
		return nil, classifySQLite("history", err)
	}
	defer rows.Close()

	var out []airquality.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, classifySQLite("history", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite("history", err)
	}
	return out, nil
}

func (s *SQLiteStore) InsertAlert(ctx context.Context, a airquality.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (station_uid, alert_type, message, aqi_value) VALUES (?, ?, ?, ?)`,
		a.StationUID, string(a.Type), a.Message, a.AQIValue)
	return classifySQLite("insert alert", err)
}

func (s *SQLiteStore) RecentAlerts(ctx context.Context, limit int) ([]airquality.Alert, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_uid, alert_type, message, aqi_value, created_at
		FROM alerts
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, classifySQLite("recent alerts", err)
	}
	defer rows.Close()

	var out []airquality.Alert
	for rows.Next() {
		var (
			a         airquality.Alert
			alertType string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.StationUID, &alertType, &a.Message, &a.AQIValue, &createdAt); err != nil {
			return nil, classifySQLite("recent alerts", err)
		}
		a.Type = airquality.AlertType(alertType)
		if ts, err := time.Parse(createdAtLayout, createdAt); err == nil {
			a.CreatedAt = ts
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite("recent alerts", err)
	}
	return out, nil
}

func (s *SQLiteStore) HourlyTrend(ctx context.Context, since time.Time) ([]airquality.HourlyAverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(strftime('%H', timestamp) AS INTEGER) AS hour, SUM(aqi), COUNT(*)
		FROM measurements
		WHERE timestamp >= ?
		GROUP BY hour`, airquality.FormatTimestamp(since))
	if err != nil {
		return nil, classifySQLite("hourly trend", err)
	}
	defer rows.Close()

	var sums [24]float64
	var counts [24]int
	for rows.Next() {
		var (
			hour  int
			sum   float64
			count int
		)
		if err := rows.Scan(&hour, &sum, &count); err != nil {
			return nil, classifySQLite("hourly trend", err)
		}
		if hour >= 0 && hour < 24 {
			sums[hour] = sum
			counts[hour] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite("hourly trend", err)
	}
	return collectHourly(sums, counts), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(r rowScanner) (airquality.Measurement, error) {
	var (
		m  airquality.Measurement
		ts string
	)
	if err := r.Scan(&m.StationUID, &m.AQI, &m.PM25, &ts); err != nil {
		return m, err
	}
	parsed, err := airquality.ParseTimestamp(ts)
	if err != nil {
		return m, fmt.Errorf("bad stored timestamp %q: %w", ts, err)
	}
	m.Timestamp = parsed
	return m, nil
}
