package database

import "errors"

// Domain-specific errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnsupportedDriver is returned for a driver name the connector does not ship.
	ErrUnsupportedDriver = errors.New("database: unsupported driver")

	// ErrQueryFailed wraps every query execution or scan failure.
	ErrQueryFailed = errors.New("database: query failed")
)
