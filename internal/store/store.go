package store

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/airwatch/internal/airquality"
)

//go:embed migrations
var migrationsFS embed.FS

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a store backend.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresURL string
	BusyTimeout time.Duration
}

// Open builds the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (airquality.Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite:
		return OpenSQLite(ctx, opts.SQLitePath, opts.BusyTimeout)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.PostgresURL)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
