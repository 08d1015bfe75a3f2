package recordset

import (
	"encoding/json"
	"testing"
)

func TestRow_MarshalJSONKeepsColumnOrder(t *testing.T) {
	row := NewRow(3)
	row.Set("zeta", 1)
	row.Set("alpha", "a")
	row.Set("mid", nil)

	got, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"zeta":1,"alpha":"a","mid":null}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestRow_DuplicateColumnKeepsFirstPosition(t *testing.T) {
	row := NewRow(3)
	row.Set("a", 1)
	row.Set("b", 2)
	row.Set("a", 3)

	if row.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", row.Len())
	}

	got, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(got) != `{"a":3,"b":2}` {
		t.Errorf("Marshal() = %s", got)
	}

	v, ok := row.Get("a")
	if !ok || v != 3 {
		t.Errorf("Get(a) = %v, %v; want 3, true", v, ok)
	}
	if _, ok := row.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestRow_EmptyMarshalsAsObject(t *testing.T) {
	got, err := json.Marshal(NewRow(0))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(got) != `{}` {
		t.Errorf("Marshal() = %s, want {}", got)
	}
}

func TestEncode(t *testing.T) {
	row := NewRow(1)
	row.Set("n", int64(1))

	tests := []struct {
		name string
		rows Rows
		want string
	}{
		{name: "nil", rows: nil, want: `{"rows":[]}`},
		{name: "empty", rows: Rows{}, want: `{"rows":[]}`},
		{name: "one row", rows: Rows{row}, want: `{"rows":[{"n":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.rows)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}
