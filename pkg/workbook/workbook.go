// Package workbook reads saved workbook queries from a backend table.
package workbook

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/metrics"
)

// DefaultTable is the platform's saved search table.
const DefaultTable = "UsrSavedSearch"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Store lists and loads workbooks. The table has the columns ScriptID, Name,
// Description, Owner and Query.
type Store struct {
	exec  backend.Executor
	table string
}

// New creates a store over table. An empty table selects DefaultTable.
func New(exec backend.Executor, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, qerrors.Newf(qerrors.ErrCodeConfigInvalid, "invalid workbook table name: %s", table).
			WithOp("workbook.New").
			Err()
	}
	return &Store{exec: exec, table: table}, nil
}

// List returns every workbook ordered by name, with lower case keys
// scriptid, name, description and owner.
func (s *Store) List(ctx context.Context) ([]backend.Record, error) {
	sql := fmt.Sprintf(
		"SELECT ScriptID AS scriptid, Name AS name, Description AS description, Owner AS owner FROM %s ORDER BY Name",
		s.table)

	metrics.ObserveBackendCall(metrics.KindSingle)
	records, err := s.exec.Query(ctx, sql)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecFailed, "failed to list workbooks").
			WithOp("workbook.List").
			Err()
	}
	return records, nil
}

// Load returns the query text of the workbook with the given script ID.
func (s *Store) Load(ctx context.Context, scriptID string) (string, error) {
	sql := fmt.Sprintf("SELECT Query AS sql FROM %s WHERE ScriptID = %s", s.table, s.exec.Dialect().Placeholder(1))

	metrics.ObserveBackendCall(metrics.KindSingle)
	records, err := s.exec.Query(ctx, sql, scriptID)
	if err != nil {
		return "", qerrors.Wrap(err, qerrors.ErrCodeExecFailed, "failed to load workbook").
			WithOp("workbook.Load").
			WithField("scriptID", scriptID).
			Err()
	}
	if len(records) == 0 {
		return "", qerrors.Newf(qerrors.ErrCodeWorkbookNotFound, "workbook not found: %s", scriptID).
			WithOp("workbook.Load").
			WithField("scriptID", scriptID).
			Err()
	}

	v, _ := records[0].Get("sql")
	switch q := v.(type) {
	case string:
		return q, nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(q), nil
	}
}
