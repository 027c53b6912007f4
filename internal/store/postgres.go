package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/logger"
)

// PostgresStore persists measurements in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres store")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, classifyPostgres("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyPostgres("ping postgres", err)
	}

	if err := migratePostgres(pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Infof("store: postgres ready")
	return &PostgresStore{pool: pool}, nil
}

// migratePostgres applies the embedded migrations through a database/sql view
// of the pool. Closing that view leaves the pool open.
func migratePostgres(pool *pgxpool.Pool) error {
	source, err := iofs.New(migrationsFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	driver, err := migratepgx.WithInstance(stdlib.OpenDBFromPool(pool), &migratepgx.Config{})
	if err != nil {
		return classifyPostgres("create migration driver", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres migration failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, m airquality.Measurement) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO measurements (station_uid, aqi, pm25, timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (station_uid, timestamp) DO NOTHING`,
		m.StationUID, m.AQI, m.PM25, m.Timestamp)
	if err != nil {
		return false, classifyPostgres("insert measurement", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertBatch inserts ms in one round trip and reports which rows were new,
// in input order.
func (s *PostgresStore) InsertBatch(ctx context.Context, ms []airquality.Measurement) ([]bool, error) {
	if len(ms) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, m := range ms {
		batch.Queue(`
			INSERT INTO measurements (station_uid, aqi, pm25, timestamp)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (station_uid, timestamp) DO NOTHING`,
			m.StationUID, m.AQI, m.PM25, m.Timestamp)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	inserted := make([]bool, len(ms))
	for i := range ms {
		tag, err := res.Exec()
		if err != nil {
			return inserted, classifyPostgres("insert batch", err)
		}
		inserted[i] = tag.RowsAffected() > 0
	}
	return inserted, nil
}

func (s *PostgresStore) LatestPerStation(ctx context.Context) (map[int]airquality.Measurement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (station_uid) station_uid, aqi, pm25, timestamp
		FROM measurements
		ORDER BY station_uid, timestamp DESC`)
	if err != nil {
		return nil, classifyPostgres("latest per station", err)
	}
	defer rows.Close()

	out := make(map[int]airquality.Measurement)
	for rows.Next() {
		m, err := scanPgMeasurement(rows)
		if err != nil {
			return nil, classifyPostgres("latest per station", err)
		}
		out[m.StationUID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgres("latest per station", err)
	}
	return out, nil
}

func (s *PostgresStore) History(ctx context.Context, uid int, limit int) ([]airquality.Measurement, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT station_uid, aqi, pm25, timestamp
		FROM measurements
		WHERE station_uid = $1
		ORDER BY timestamp DESC
		LIMIT $2`, uid, lim)
	if err != nil {
		return nil, classifyPostgres("history", err)
	}
	defer rows.Close()

	var out []airquality.Measurement
	for rows.Next() {
		m, err := scanPgMeasurement(rows)
		if err != nil {
			return nil, classifyPostgres("history", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgres("history", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a airquality.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (station_uid, alert_type, message, aqi_value)
		VALUES ($1, $2, $3, $4)`,
		a.StationUID, string(a.Type), a.Message, a.AQIValue)
	return classifyPostgres("insert alert", err)
}

func (s *PostgresStore) RecentAlerts(ctx context.Context, limit int) ([]airquality.Alert, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, station_uid, alert_type, message, aqi_value, created_at
		FROM alerts
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, lim)
	if err != nil {
		return nil, classifyPostgres("recent alerts", err)
	}
	defer rows.Close()

	var out []airquality.Alert
	for rows.Next() {
		var (
			a         airquality.Alert
			alertType string
		)
		if err := rows.Scan(&a.ID, &a.StationUID, &alertType, &a.Message, &a.AQIValue, &a.CreatedAt); err != nil {
			return nil, classifyPostgres("recent alerts", err)
		}
		a.Type = airquality.AlertType(alertType)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgres("recent alerts", err)
	}
	return out, nil
}

func (s *PostgresStore) HourlyTrend(ctx context.Context, since time.Time) ([]airquality.HourlyAverage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT EXTRACT(HOUR FROM timestamp)::int AS hour, SUM(aqi)::float8, COUNT(*)::int
		FROM measurements
		WHERE timestamp >= $1
		GROUP BY hour`, since)
	if err != nil {
		return nil, classifyPostgres("hourly trend", err)
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
			return nil, classifyPostgres("hourly trend", err)
		}
		if hour >= 0 && hour < 24 {
			sums[hour] = sum
			counts[hour] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgres("hourly trend", err)
	}
	return collectHourly(sums, counts), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgMeasurement(rows pgx.Rows) (airquality.Measurement, error) {
	var m airquality.Measurement
	if err := rows.Scan(&m.StationUID, &m.AQI, &m.PM25, &m.Timestamp); err != nil {
		return m, err
	}
	// TIMESTAMP columns come back in UTC; the wall clock is what was stored.
	m.Timestamp = airquality.NaiveLocal(m.Timestamp)
	return m, nil
}
