package backend

import (
	"encoding/json"
	"testing"
)

func TestRecord_MarshalKeepsColumnOrder(t *testing.T) {
	rec := NewRecord([]string{"zeta", "alpha", "Mid"}, []interface{}{int64(1), "a", nil})

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"zeta":1,"alpha":"a","Mid":null}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestRecord_RepeatedColumnKeepsLastValue(t *testing.T) {
	rec := NewRecord([]string{"id", "name", "id"}, []interface{}{int64(1), "Acme", int64(7)})

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":7,"name":"Acme"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	if v, _ := rec.Get("id"); v != int64(7) {
		t.Errorf("Get(id) = %v, want 7", v)
	}
	if v := rec.Map()["id"]; v != int64(7) {
		t.Errorf("Map()[id] = %v, want 7", v)
	}
}

func TestRecord_UnmarshalKeepsColumnOrder(t *testing.T) {
	var rec Record
	if err := json.Unmarshal([]byte(`{"b":2,"a":"x","c":1.50}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	cols := rec.Columns()
	if len(cols) != 3 || cols[0] != "b" || cols[1] != "a" || cols[2] != "c" {
		t.Fatalf("unexpected columns %v", cols)
	}
	v, _ := rec.Get("c")
	if n, ok := v.(json.Number); !ok || n.String() != "1.50" {
		t.Errorf("expected json.Number 1.50, got %#v", v)
	}
}

func TestRecord_GetIsCaseInsensitive(t *testing.T) {
	rec := NewRecord([]string{"totalrecordcount"}, []interface{}{int64(42)})

	v, ok := rec.Get(TotalCountColumn)
	if !ok {
		t.Fatal("expected column to be found")
	}
	if v.(int64) != 42 {
		t.Errorf("got %v, want 42", v)
	}

	if _, ok := rec.Get("missing"); ok {
		t.Error("expected missing column not to be found")
	}
}

func TestRecord_ExactMatchWins(t *testing.T) {
	rec := NewRecord([]string{"ID", "id"}, []interface{}{"upper", "lower"})

	if v, _ := rec.Get("id"); v != "lower" {
		t.Errorf("got %v, want lower", v)
	}
}

func TestRows(t *testing.T) {
	rows := Rows(10, 3)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if v, _ := rows[2].Get("id"); v.(int64) != 12 {
		t.Errorf("expected id 12, got %v", v)
	}
}
