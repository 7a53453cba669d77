// Package database opens pooled connections to the database questions are asked
// against and names the SQL dialects the rest of the service understands.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectDuckDB   Dialect = "duckdb"
	DialectSQLite   Dialect = "sqlite"
)

func ParseDialect(raw string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(raw))) {
	case DialectPostgres:
		return DialectPostgres, nil
	case DialectDuckDB:
		return DialectDuckDB, nil
	case DialectSQLite:
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", raw)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectDuckDB:
		return "duckdb"
	case DialectSQLite:
		return "sqlite"
	default:
		return ""
	}
}

// DisplayName is how prompts refer to the dialect.
func (d Dialect) DisplayName() string {
	switch d {
	case DialectPostgres:
		return "PostgreSQL"
	case DialectDuckDB:
		return "DuckDB"
	case DialectSQLite:
		return "SQLite"
	default:
		return "SQL"
	}
}

// SupportsReadOnlyTx reports whether BeginTx accepts ReadOnly for the driver.
// go-duckdb rejects it and SQLite has no per-transaction read-only mode.
func (d Dialect) SupportsReadOnlyTx() bool {
	return d == DialectPostgres
}

// DefaultSchema is the schema whose tables are listed without a qualifier.
func (d Dialect) DefaultSchema() string {
	switch d {
	case DialectPostgres:
		return "public"
	case DialectDuckDB, DialectSQLite:
		return "main"
	default:
		return ""
	}
}

// ConnectionError reports that the database could not be reached. It is fatal to
// the request but worth retrying later.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database unreachable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AsConnectionError wraps err unless it is a context cancellation, which belongs
// to the caller rather than the database.
func AsConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &ConnectionError{Err: err}
}

type DBConfig struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	driver := cfg.Dialect.DriverName()
	if driver == "" {
		return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}
	if cfg.DSN == "" && cfg.Dialect != DialectDuckDB {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Err: fmt.Errorf("ping %s database: %w", cfg.Dialect, err)}
	}

	return db, nil
}

// HealthCheck pings db and reports failures as ConnectionError.
func HealthCheck(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database is not configured")
		}
		if err := db.PingContext(ctx); err != nil {
			return AsConnectionError(fmt.Errorf("ping database: %w", err))
		}
		return nil
	}
}
