// Package database provides the SQL connection pool the connector queries.
//
// This package manages:
//   - Opening a database/sql pool for SQL Server, PostgreSQL, MySQL or SQLite
//   - Building driver DSNs from discrete settings (or taking DB_DSN verbatim)
//   - Pool sizing and idle timeouts
//   - The startup connectivity check (SELECT 1)
//   - Executing query text and converting the result to recordset rows
//
// Security Considerations:
//   - Query text is executed as given; the binder is responsible for what
//     reaches it. Use a least-privilege, read-only database account.
//   - Passwords are only ever placed in the DSN, never logged
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	rows, err := db.Query(ctx, "SELECT TOP 10 * FROM Readings")
package database
