package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one result row: column names paired with scalar values, in the
// order the backend returned them.
type Record struct {
	columns []string
	values  []interface{}
}

// NewRecord builds a record. columns and values must have equal length.
func NewRecord(columns []string, values []interface{}) Record {
	if len(columns) != len(values) {
		panic(fmt.Sprintf("backend: record has %d columns and %d values", len(columns), len(values)))
	}
	return Record{columns: columns, values: values}
}

// Columns returns the column names.
func (r Record) Columns() []string { return r.columns }

// Values returns the values in column order.
func (r Record) Values() []interface{} { return r.values }

// Len returns the number of columns.
func (r Record) Len() int { return len(r.columns) }

// Get returns the value of the named column. Names match case-insensitively
// because drivers disagree on the case of unquoted aliases. A repeated
// column yields its last value, as in Map and MarshalJSON.
func (r Record) Get(name string) (interface{}, bool) {
	for i := len(r.columns) - 1; i >= 0; i-- {
		if r.columns[i] == name {
			return r.values[i], true
		}
	}
	for i := len(r.columns) - 1; i >= 0; i-- {
		if strings.EqualFold(r.columns[i], name) {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the record as a map, losing column order.
func (r Record) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.columns))
	for i, col := range r.columns {
		m[col] = r.values[i]
	}
	return m
}

// MarshalJSON writes the record as a JSON object in column order. A column
// name that repeats (SELECT t.id, u.id) is written once, at its first
// position, holding the last value.
func (r Record) MarshalJSON() ([]byte, error) {
	last := make(map[string]int, len(r.columns))
	for i, col := range r.columns {
		last[col] = i
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	written := 0
	for _, col := range r.columns {
		j, ok := last[col]
		if !ok {
			continue
		}
		delete(last, col)
		if written > 0 {
			buf.WriteByte(',')
		}
		written++

		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[j])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order. Numbers decode as
// json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}

	r.columns = r.columns[:0]
	r.values = r.values[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: expected key, got %v", tok)
		}
		var val interface{}
		if err := dec.Decode(&val); err != nil {
			return err
		}
		r.columns = append(r.columns, key)
		r.values = append(r.values, val)
	}
	_, err = dec.Token()
	return err
}
