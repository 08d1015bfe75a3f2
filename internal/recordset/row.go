package recordset

import (
	"bytes"
	"encoding/json"
)

// Row is one result row with columns in select order.
type Row struct {
	columns []string
	values  []any
}

// NewRow returns an empty row with room for n columns.
func NewRow(n int) Row {
	return Row{
		columns: make([]string, 0, n),
		values:  make([]any, 0, n),
	}
}

// Set stores value under column. A repeated column name keeps its first
// position and takes the latest value.
func (r *Row) Set(column string, value any) {
	for i, c := range r.columns {
		if c == column {
			r.values[i] = value
			return
		}
	}
	r.columns = append(r.columns, column)
	r.values = append(r.values, value)
}

// Get returns the value stored under column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.columns)
}

// MarshalJSON encodes the row as an object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Rows is an ordered result set.
type Rows []Row

// Envelope is the wire shape for API responses and telemetry payloads.
type Envelope struct {
	Rows Rows `json:"rows"`
}

// Encode returns {"rows":[...]}. A nil or empty set encodes as an empty array.
func Encode(rows Rows) ([]byte, error) {
	if rows == nil {
		rows = Rows{}
	}
	return json.Marshal(Envelope{Rows: rows})
}
