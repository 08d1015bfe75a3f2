package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"   // MySQL driver
	_ "github.com/lib/pq"                // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"      // SQLite driver
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/config"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/recordset"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for a SQLite database directory.
	dirPermissions = 0750

	// connectionTimeout is the timeout for the startup connectivity check.
	connectionTimeout = 10 * time.Second

	// connMaxLifetime refreshes pooled connections periodically.
	connMaxLifetime = time.Hour
)

// DB wraps a sql.DB pool with connector-specific functionality.
// It provides health checks, row conversion and lifecycle management.
//
// Thread Safety:
//   - All methods are safe for concurrent use; the pool is shared by every
//     API request and telemetry loop.
type DB struct {
	*sql.DB
	driver string
}

// Open creates the connection pool and verifies it with SELECT 1.
//
// It performs the following setup:
//  1. Builds the driver DSN from cfg
//  2. Creates the SQLite directory when needed
//  3. Opens the pool and applies pool sizing
//  4. Runs the connectivity check
//
// Parameters:
//   - ctx: Context for the connectivity check
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Connected database wrapper
//   - error: If the DSN is invalid or the database is unreachable
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driver, dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	if driver == config.DriverSQLite && cfg.DSN == "" && cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	configurePool(sqlDB, driver, cfg)

	db := &DB{
		DB:     sqlDB,
		driver: driver,
	}

	checkCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	return db, nil
}

// configurePool applies pool limits.
// database/sql has no minimum pool size; idle connections up to PoolMax are
// kept and closed after the idle timeout.
func configurePool(sqlDB *sql.DB, driver string, cfg config.DatabaseConfig) {
	if driver == config.DriverSQLite {
		// SQLite only supports one writer.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return
	}

	sqlDB.SetMaxOpenConns(cfg.PoolMax)
	idle := cfg.PoolMax
	if idle < cfg.PoolMin {
		idle = cfg.PoolMin
	}
	sqlDB.SetMaxIdleConns(idle)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	if cfg.IdleTimeoutMS > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.IdleTimeoutMS) * time.Millisecond)
	}
}

// Close closes the pool gracefully.
// It should be called when the application shuts down.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Driver returns the database/sql driver name.
func (db *DB) Driver() string {
	return db.driver
}

// HealthCheck verifies the database is accessible and functioning.
// It performs a simple query to ensure the connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns database connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// Query executes sqlText and converts every returned row.
//
// The text is sent without bind arguments; placeholders must already have
// been substituted.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - sqlText: final SQL text
//
// Returns:
//   - recordset.Rows: the result set (empty, never nil, when no rows match)
//   - error: wraps ErrQueryFailed
func (db *DB) Query(ctx context.Context, sqlText string) (recordset.Rows, error) {
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	out, err := recordset.FromSQL(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return out, nil
}
