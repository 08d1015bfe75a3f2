package recordset

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	mssql "github.com/microsoft/go-mssqldb"
)

// MaxSafeInteger is the largest integer a float64 (and so a JavaScript
// number) represents exactly.
const MaxSafeInteger = 1<<53 - 1

var (
	maxSafe = big.NewInt(MaxSafeInteger)
	minSafe = big.NewInt(-MaxSafeInteger)

	// jsonNumber matches the JSON number grammar.
	jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)
)

// FromSQL reads every remaining row of rows. The caller closes rows.
//
// Values are normalised per column type: driver text for integer, float and
// decimal columns is parsed, SQL Server uniqueidentifiers render in their
// canonical form, other valid UTF-8 bytes become strings, and integers
// outside the safe range become decimal strings.
func FromSQL(rows *sql.Rows) (Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	typeNames := make([]string, len(columns))
	if types, typeErr := rows.ColumnTypes(); typeErr == nil {
		for i, ct := range types {
			typeNames[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}

	out := Rows{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := NewRow(len(columns))
		for i, col := range columns {
			row.Set(col, Normalize(values[i], typeNames[i]))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return out, nil
}

// Normalize converts a scanned driver value into its JSON form.
// typeName is the upper-case database type name, or "" when unknown.
func Normalize(v any, typeName string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int64:
		return safeInt(val)
	case int32:
		return int64(val)
	case int:
		return safeInt(int64(val))
	case uint64:
		if val > MaxSafeInteger {
			return strconv.FormatUint(val, 10)
		}
		return int64(val)
	case float64:
		return safeFloat(val)
	case float32:
		return safeFloat(float64(val))
	case bool, time.Time:
		return val
	case []byte:
		return normalizeBytes(val, typeName)
	case string:
		if isDecimalType(typeName) || isIntegerType(typeName) {
			return decimalValue(val)
		}
		return val
	default:
		return val
	}
}

func normalizeBytes(b []byte, typeName string) any {
	switch {
	case isIntegerType(typeName), isDecimalType(typeName):
		return decimalValue(string(b))
	case isFloatType(typeName):
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return safeFloat(f)
		}
		return string(b)
	case typeName == "UNIQUEIDENTIFIER" && len(b) == 16:
		var id mssql.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return id.String()
		}
	}

	if utf8.Valid(b) {
		return string(b)
	}
	// Binary columns; encoding/json renders []byte as base64.
	return b
}

// safeInt renders integers outside ±MaxSafeInteger as strings.
func safeInt(n int64) any {
	if n > MaxSafeInteger || n < -MaxSafeInteger {
		return strconv.FormatInt(n, 10)
	}
	return n
}

// safeFloat keeps values JSON can encode; NaN and infinities become strings.
func safeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

// decimalValue parses exact numeric text.
func decimalValue(text string) any {
	s := strings.TrimSpace(text)
	if s == "" {
		return text
	}

	if n, ok := new(big.Int).SetString(s, 10); ok {
		if n.Cmp(maxSafe) > 0 || n.Cmp(minSafe) < 0 {
			return n.String()
		}
		return n.Int64()
	}

	if jsonNumber.MatchString(s) {
		return json.Number(s)
	}
	return text
}

func isIntegerType(t string) bool {
	switch t {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT",
		"INT2", "INT4", "INT8", "UNSIGNED INT", "UNSIGNED BIGINT",
		"UNSIGNED SMALLINT", "UNSIGNED TINYINT", "UNSIGNED MEDIUMINT", "YEAR":
		return true
	}
	return false
}

func isDecimalType(t string) bool {
	switch t {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

func isFloatType(t string) bool {
	switch t {
	case "FLOAT", "REAL", "DOUBLE", "FLOAT4", "FLOAT8":
		return true
	}
	return false
}
