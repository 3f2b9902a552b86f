// Package sqlite provides a SQLite query backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

func init() {
	backend.Register("sqlite", func(cfg backend.Config) (backend.Executor, error) {
		return Open(cfg)
	})
}

// Options holds SQLite connection options appended to the DSN.
type Options struct {
	BusyTimeout int    // Milliseconds
	CacheSize   int    // Number of pages (negative = KB)
	JournalMode string // WAL, DELETE, ...
}

// DefaultOptions returns the options used by Open.
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5000,
		CacheSize:   -2000,
	}
}

// Executor runs queries against a SQLite database file.
type Executor struct {
	db      *sql.DB
	maxRows int
	path    string
}

// Open opens the database at cfg.DSN. Files are opened read-only; ":memory:"
// is opened as is.
func Open(cfg backend.Config) (*Executor, error) {
	return OpenWithOptions(cfg, DefaultOptions())
}

// OpenWithOptions opens the database with explicit SQLite options.
func OpenWithOptions(cfg backend.Config, opts Options) (*Executor, error) {
	path := cfg.DSN
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite3", buildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &Executor{db: db, maxRows: cfg.MaxRows, path: path}, nil
}

func buildDSN(path string, opts Options) string {
	params := []string{}
	if path != ":memory:" {
		params = append(params, "mode=ro")
	}
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", opts.BusyTimeout))
	}
	if opts.CacheSize != 0 {
		params = append(params, fmt.Sprintf("_cache_size=%d", opts.CacheSize))
	}
	if opts.JournalMode != "" {
		params = append(params, "_journal_mode="+opts.JournalMode)
	}

	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Query executes sqlStr and returns at most the configured row ceiling.
func (e *Executor) Query(ctx context.Context, sqlStr string, params ...interface{}) ([]backend.Record, error) {
	rows, err := e.db.QueryContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecFailed, "query failed").
			WithOp("sqlite.Query").
			Err()
	}
	defer rows.Close()

	return backend.ScanRows(rows, e.maxRows)
}

func (e *Executor) Dialect() backend.Dialect { return backend.SQLiteDialect }

// Close closes the database.
func (e *Executor) Close() error {
	return e.db.Close()
}

// DB exposes the handle for seeding in-memory databases.
func (e *Executor) DB() *sql.DB {
	return e.db
}
