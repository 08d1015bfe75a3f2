package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/config"
)

// appName identifies the connector to the database server.
const appName = "sclab-sqlserver-connector"

// sqliteBusyTimeoutMS is the SQLite lock wait.
const sqliteBusyTimeoutMS = 5000

// BuildDSN returns the database/sql driver name and data source name for cfg.
// A non-empty cfg.DSN is returned unchanged.
//
// Returns:
//   - string: driver name registered with database/sql
//   - string: data source name
//   - error: ErrUnsupportedDriver for unknown drivers
func BuildDSN(cfg config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case config.DriverSQLServer, config.DriverPostgres, config.DriverMySQL, config.DriverSQLite:
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	if cfg.DSN != "" {
		return cfg.Driver, cfg.DSN, nil
	}

	switch cfg.Driver {
	case config.DriverSQLServer:
		return cfg.Driver, sqlServerDSN(cfg), nil
	case config.DriverPostgres:
		return cfg.Driver, postgresDSN(cfg), nil
	case config.DriverMySQL:
		return cfg.Driver, mysqlDSN(cfg), nil
	default:
		return cfg.Driver, sqliteDSN(cfg), nil
	}
}

func sqlServerDSN(cfg config.DatabaseConfig) string {
	q := url.Values{}
	if cfg.Name != "" {
		q.Set("database", cfg.Name)
	}
	q.Set("encrypt", strconv.FormatBool(cfg.Encrypt))
	q.Set("TrustServerCertificate", strconv.FormatBool(cfg.TrustServerCertificate))
	q.Set("app name", appName)

	u := url.URL{
		Scheme:   "sqlserver",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		RawQuery: q.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}

func postgresDSN(cfg config.DatabaseConfig) string {
	q := url.Values{}
	switch {
	case !cfg.Encrypt:
		q.Set("sslmode", "disable")
	case cfg.TrustServerCertificate:
		q.Set("sslmode", "require")
	default:
		q.Set("sslmode", "verify-full")
	}
	q.Set("application_name", appName)

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}

func mysqlDSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	switch {
	case !cfg.Encrypt:
		mc.TLSConfig = "false"
	case cfg.TrustServerCertificate:
		mc.TLSConfig = "skip-verify"
	default:
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

func sqliteDSN(cfg config.DatabaseConfig) string {
	// See: https://github.com/mattn/go-sqlite3#connection-string
	return fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Path, sqliteBusyTimeoutMS)
}
