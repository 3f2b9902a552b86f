// Package postgres provides a PostgreSQL query backend built on pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

func init() {
	backend.Register("postgres", func(cfg backend.Config) (backend.Executor, error) {
		return Open(context.Background(), cfg)
	})
}

// Executor runs queries through a pgx connection pool. Every session is
// read-only.
type Executor struct {
	pool    *pgxpool.Pool
	maxRows int
}

// Open connects to cfg.DSN.
func Open(ctx context.Context, cfg backend.Config) (*Executor, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "qconsole"
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Executor{pool: pool, maxRows: cfg.MaxRows}, nil
}

// Query executes sql and returns at most the configured row ceiling.
func (e *Executor) Query(ctx context.Context, sql string, params ...interface{}) ([]backend.Record, error) {
	rows, err := e.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecFailed, "query failed").
			WithOp("postgres.Query").
			Err()
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	records := make([]backend.Record, 0)
	for len(records) < e.maxRows && rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, qerrors.Wrap(err, qerrors.ErrCodeExecScan, "failed to scan row").
				WithOp("postgres.Query").
				WithField("row", len(records)+1).
				Err()
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		records = append(records, backend.NewRecord(columns, values))
	}
	// Stop the server streaming rows beyond the ceiling.
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecFailed, "query failed").
			WithOp("postgres.Query").
			Err()
	}
	return records, nil
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		if x.NaN || x.InfinityModifier != pgtype.Finite {
			return nil
		}
		return backend.Decimal(decimal.NewFromBigInt(x.Int, x.Exp))
	case [16]byte:
		// uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	default:
		return backend.Normalize(v, "")
	}
}

func (e *Executor) Dialect() backend.Dialect { return backend.PostgresDialect }

// Close closes the pool.
func (e *Executor) Close() error {
	e.pool.Close()
	return nil
}
