package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ha1tch/qconsole/pkg/backend"
)

func sample() []backend.Record {
	cols := []string{"id", "name", "note"}
	return []backend.Record{
		backend.NewRecord(cols, []interface{}{int64(1), "Acme", nil}),
		backend.NewRecord(cols, []interface{}{json.Number("2.50"), `say "hi"`, "a\nb"}),
	}
}

func TestWriteCSV(t *testing.T) {
	tests := []struct {
		nulls NullFormat
		want  string
	}{
		{NullLiteral, "\"id\",\"name\",\"note\"\r\n\"1\",\"Acme\",\"null\"\r\n\"2.50\",\"say \"\"hi\"\"\",\"a\nb\"\r\n"},
		{NullBlank, "\"id\",\"name\",\"note\"\r\n\"1\",\"Acme\",\"\"\r\n\"2.50\",\"say \"\"hi\"\"\",\"a\nb\"\r\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := WriteCSV(&buf, sample(), Options{Nulls: tt.nulls}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if buf.String() != tt.want {
			t.Errorf("nulls=%s:\nexpected %q\ngot      %q", tt.nulls, tt.want, buf.String())
		}
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil, Options{}); err != nil || buf.Len() != 0 {
		t.Errorf("expected no output, got %q (%v)", buf.String(), err)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sample()[:1]); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "[\n  {\n    \"id\": 1,\n    \"name\": \"Acme\",\n    \"note\": null\n  }\n]\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}

	buf.Reset()
	WriteJSON(&buf, nil)
	if buf.String() != "[]\n" {
		t.Errorf("expected empty array, got %q", buf.String())
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, sample(), Options{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "id    name") {
		t.Errorf("header not aligned: %q", lines[0])
	}
	if !strings.Contains(lines[3], "a b") {
		t.Errorf("expected newline folded, got %q", lines[3])
	}
	if lines[4] != "(2 rows)" {
		t.Errorf("unexpected footer %q", lines[4])
	}

	buf.Reset()
	WriteTable(&buf, nil, Options{})
	if buf.String() != "(0 rows)\n" {
		t.Errorf("unexpected empty table %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", FormatTable, true},
		{"CSV", FormatCSV, true},
		{" json ", FormatJSON, true},
		{"xml", "", false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
