package backend

import (
	"fmt"
	"strconv"
	"strings"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

// RowNumberColumn is the column the windowed query adds to every row.
const RowNumberColumn = "ROWNUMBER"

// TotalCountColumn is the alias of the count query's single column.
const TotalCountColumn = "TotalRecordCount"

// Dialect builds the two wrapper queries the engine needs.
type Dialect interface {
	Name() string

	// WindowSQL numbers the rows of inner sequentially and keeps those whose
	// number lies in [begin, end].
	WindowSQL(inner string, begin, end int) string

	// CountSQL counts the rows of inner.
	CountSQL(inner string) string

	// Placeholder returns the marker for the n-th bind parameter (1-based).
	Placeholder(n int) string
}

// SuiteQL is the platform dialect: ROWNUM numbering over anonymous derived
// tables.
type SuiteQL struct{}

func (SuiteQL) Name() string { return "suiteql" }

func (SuiteQL) WindowSQL(inner string, begin, end int) string {
	return fmt.Sprintf("SELECT * FROM ( SELECT ROWNUM AS %s, * FROM ( %s ) ) WHERE ( %s BETWEEN %d AND %d)",
		RowNumberColumn, inner, RowNumberColumn, begin, end)
}

func (SuiteQL) CountSQL(inner string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS %s FROM ( %s )", TotalCountColumn, inner)
}

func (SuiteQL) Placeholder(int) string { return "?" }

// Standard uses ROW_NUMBER() and aliases every derived table, which SQLite,
// PostgreSQL and DuckDB all accept.
type Standard struct {
	// DialectName is reported by Name.
	DialectName string

	// Over is the window clause for ROW_NUMBER(). Empty means "OVER ()".
	Over string

	// BindPrefix is prepended to the parameter number ("$" gives $1, "@p"
	// gives @p1). Empty means the positional "?".
	BindPrefix string
}

func (d Standard) Name() string { return d.DialectName }

func (d Standard) WindowSQL(inner string, begin, end int) string {
	over := d.Over
	if over == "" {
		over = "OVER ()"
	}
	return fmt.Sprintf("SELECT * FROM ( SELECT ROW_NUMBER() %s AS %s, q.* FROM ( %s ) q ) w WHERE ( %s BETWEEN %d AND %d )",
		over, RowNumberColumn, inner, RowNumberColumn, begin, end)
}

func (d Standard) CountSQL(inner string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS %s FROM ( %s ) q", TotalCountColumn, inner)
}

func (d Standard) Placeholder(n int) string {
	if d.BindPrefix == "" {
		return "?"
	}
	return d.BindPrefix + strconv.Itoa(n)
}

var (
	SQLiteDialect    Dialect = Standard{DialectName: "sqlite"}
	PostgresDialect  Dialect = Standard{DialectName: "postgres", BindPrefix: "$"}
	DuckDBDialect    Dialect = Standard{DialectName: "duckdb"}
	SQLServerDialect Dialect = Standard{DialectName: "sqlserver", Over: "OVER (ORDER BY (SELECT NULL))", BindPrefix: "@p"}
	SuiteQLDialect   Dialect = SuiteQL{}
)

// LookupDialect returns the dialect with the given name.
func LookupDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "suiteql":
		return SuiteQLDialect, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect, nil
	case "postgres", "postgresql", "pgx":
		return PostgresDialect, nil
	case "duckdb":
		return DuckDBDialect, nil
	case "sqlserver", "mssql", "tsql":
		return SQLServerDialect, nil
	default:
		return nil, qerrors.Newf(qerrors.ErrCodeConfigInvalid, "unknown dialect: %s", name).
			WithOp("backend.LookupDialect").
			Err()
	}
}
