package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/common"
)

// classifySQLite maps a driver error onto the store error taxonomy.
func classifySQLite(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%s: %w: %v", op, airquality.ErrStorageContention, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrCorrupt,
			sqlite3.ErrNotADB, sqlite3.ErrReadonly, sqlite3.ErrFull, sqlite3.ErrPerm:
			return fmt.Errorf("%s: %w: %v", op, airquality.ErrStorageUnavailable, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) ||
		common.HasAny(err.Error(), "database is closed", "unable to open database file") {
		return fmt.Errorf("%s: %w: %v", op, airquality.ErrStorageUnavailable, err)
	}
	if common.HasAny(err.Error(), "database is locked", "database table is locked") {
		return fmt.Errorf("%s: %w: %v", op, airquality.ErrStorageContention, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// classifyPostgres maps a pgx error onto the store error taxonomy. Lock and
// serialization failures are contention; everything else is unavailability.
func classifyPostgres(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%s: %w: %v", op, airquality.ErrStorageContention, err)
		}
		if len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57") {
			return fmt.Errorf("%s: %w: %v", op, airquality.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, airquality.ErrStorageUnavailable, err)
}
