// Package sqlserver provides a SQL Server query backend.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

func init() {
	backend.Register("sqlserver", func(cfg backend.Config) (backend.Executor, error) {
		return Open(cfg)
	})
}

// Executor runs queries through go-mssqldb with read-only application intent.
type Executor struct {
	db      *sql.DB
	maxRows int
}

// Open connects to cfg.DSN (URL or key=value form).
func Open(cfg backend.Config) (*Executor, error) {
	db, err := sql.Open("sqlserver", readOnlyDSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return &Executor{db: db, maxRows: cfg.MaxRows}, nil
}

// readOnlyDSN adds ApplicationIntent=ReadOnly unless the DSN sets it.
func readOnlyDSN(dsn string) string {
	if strings.Contains(strings.ToLower(dsn), "applicationintent") {
		return dsn
	}
	if strings.HasPrefix(dsn, "sqlserver://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("ApplicationIntent", "ReadOnly")
		u.RawQuery = q.Encode()
		return u.String()
	}
	if dsn != "" && !strings.HasSuffix(dsn, ";") {
		dsn += ";"
	}
	return dsn + "ApplicationIntent=ReadOnly"
}

// Query executes sqlStr; positional parameters bind to @p1, @p2, ...
func (e *Executor) Query(ctx context.Context, sqlStr string, params ...interface{}) ([]backend.Record, error) {
	rows, err := e.db.QueryContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecFailed, "query failed").
			WithOp("sqlserver.Query").
			Err()
	}
	defer rows.Close()

	return backend.ScanRows(rows, e.maxRows)
}

func (e *Executor) Dialect() backend.Dialect { return backend.SQLServerDialect }

// Close closes the connection pool.
func (e *Executor) Close() error {
	return e.db.Close()
}
