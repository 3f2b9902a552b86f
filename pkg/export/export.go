// Package export writes query results as CSV, JSON or an aligned text table.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

// Format names an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatCSV, FormatJSON:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", qerrors.InvalidInput("format", "must be table, csv or json").Err()
	}
}

// NullFormat controls how NULL values are rendered in CSV and tables.
type NullFormat string

const (
	NullLiteral NullFormat = "null"
	NullBlank   NullFormat = "blank"
)

// Options configures a writer.
type Options struct {
	Nulls NullFormat
}

// Write writes records in the given format.
func Write(w io.Writer, f Format, records []backend.Record, opts Options) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, records, opts)
	case FormatJSON:
		return WriteJSON(w, records)
	default:
		return WriteTable(w, records, opts)
	}
}

// Columns returns the column names of the first record.
func Columns(records []backend.Record) []string {
	if len(records) == 0 {
		return nil
	}
	return records[0].Columns()
}

// WriteCSV writes a header line and one line per record with every field
// quoted and CRLF line endings.
func WriteCSV(w io.Writer, records []backend.Record, opts Options) error {
	columns := Columns(records)
	if len(columns) == 0 {
		return nil
	}

	if err := writeQuotedLine(w, columns); err != nil {
		return err
	}
	fields := make([]string, len(columns))
	for _, r := range records {
		for i, col := range columns {
			v, _ := r.Get(col)
			fields[i] = formatValue(v, opts.Nulls)
		}
		if err := writeQuotedLine(w, fields); err != nil {
			return err
		}
	}
	return nil
}

func writeQuotedLine(w io.Writer, fields []string) error {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteString("\r\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteJSON writes the records as an indented JSON array.
func WriteJSON(w io.Writer, records []backend.Record) error {
	if records == nil {
		records = []backend.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteTable writes the records as aligned columns followed by a row count.
func WriteTable(w io.Writer, records []backend.Record, opts Options) error {
	columns := Columns(records)
	if len(columns) == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))

	rule := make([]string, len(columns))
	for i, col := range columns {
		rule[i] = strings.Repeat("-", len(col))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	cells := make([]string, len(columns))
	for _, r := range records {
		for i, col := range columns {
			v, _ := r.Get(col)
			cells[i] = singleLine(formatValue(v, opts.Nulls))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	noun := "rows"
	if len(records) == 1 {
		noun = "row"
	}
	_, err := fmt.Fprintf(w, "(%d %s)\n", len(records), noun)
	return err
}

func formatValue(v interface{}, nulls NullFormat) string {
	switch x := v.(type) {
	case nil:
		if nulls == NullBlank {
			return ""
		}
		return "null"
	case string:
		return x
	case []byte:
		return string(x)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func singleLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
}
