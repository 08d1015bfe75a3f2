// Package binder turns a SQL template and request values into the final SQL text.
//
// Templates name their inputs with colon placeholders:
//
//	SELECT * FROM Readings WHERE SensorID = :sensor AND Taken > :since
//
// Scanning is delegated to github.com/mikeschinkel/go-sqlparams, so
// placeholders inside string literals, quoted identifiers ("x", `x`, [x]),
// comments and PostgreSQL "::" casts are ignored.
//
// Binding is textual: each supplied value replaces its placeholder token
// verbatim and unquoted, and placeholders without a value are left in the SQL
// as-is.
//
// The optional injection screen (Suspicious) is a denylist heuristic. It
// rejects common attack shapes but is NOT a security boundary; deployments that
// face untrusted clients must still use least-privilege database accounts.
//
// "#" never starts a comment: SQL Server uses it for temporary table names
// (#temp, ##global), and placeholders after them are recognised.
package binder
