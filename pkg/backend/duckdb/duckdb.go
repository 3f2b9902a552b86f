// Package duckdb provides a DuckDB query backend for analytical files
// (DuckDB databases, and Parquet or CSV read through DuckDB table functions).
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/shopspring/decimal"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

func init() {
	backend.Register("duckdb", func(cfg backend.Config) (backend.Executor, error) {
		return Open(cfg)
	})
}

// Executor runs queries against a DuckDB database.
type Executor struct {
	db      *sql.DB
	maxRows int
}

// Open opens cfg.DSN. Database files are opened with access_mode=READ_ONLY;
// an empty DSN opens an in-memory database.
func Open(cfg backend.Config) (*Executor, error) {
	dsn := cfg.DSN
	if dsn != "" && dsn != ":memory:" && !strings.Contains(dsn, "access_mode") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "access_mode=READ_ONLY"
	}
	if dsn == ":memory:" {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Executor{db: db, maxRows: cfg.MaxRows}, nil
}

// Query executes sqlStr and returns at most the configured row ceiling.
func (e *Executor) Query(ctx context.Context, sqlStr string, params ...interface{}) ([]backend.Record, error) {
	rows, err := e.db.QueryContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecFailed, "query failed").
			WithOp("duckdb.Query").
			Err()
	}
	defer rows.Close()

	records, err := backend.ScanRows(rows, e.maxRows)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		values := rec.Values()
		for i, v := range values {
			if d, ok := v.(duckdb.Decimal); ok {
				values[i] = backend.Decimal(decimal.NewFromBigInt(d.Value, -int32(d.Scale)))
			}
		}
	}
	return records, nil
}

func (e *Executor) Dialect() backend.Dialect { return backend.DuckDBDialect }

// Close closes the database.
func (e *Executor) Close() error {
	return e.db.Close()
}
