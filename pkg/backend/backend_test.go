package backend

import (
	"context"
	"errors"
	"testing"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "no-such-driver", MaxRows: 10})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !qerrors.IsCode(err, qerrors.ErrCodeBackendUnknown) {
		t.Errorf("expected ErrCodeBackendUnknown, got %v", err)
	}
}

func TestOpen_DialectOverride(t *testing.T) {
	Register("test-recorder", func(cfg Config) (Executor, error) {
		return NewRecorder(SQLiteDialect, nil), nil
	})

	exec, err := Open(Config{Driver: "test-recorder", Dialect: "suiteql", MaxRows: 10})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer exec.Close()

	if exec.Dialect().Name() != "suiteql" {
		t.Errorf("expected suiteql dialect, got %s", exec.Dialect().Name())
	}
}

func TestOpen_FactoryError(t *testing.T) {
	Register("test-broken", func(cfg Config) (Executor, error) {
		return nil, errors.New("refused")
	})

	_, err := Open(Config{Driver: "test-broken", MaxRows: 10})
	if !qerrors.IsCode(err, qerrors.ErrCodeBackendOpen) {
		t.Fatalf("expected ErrCodeBackendOpen, got %v", err)
	}
}

func TestRecorder_RecordsCalls(t *testing.T) {
	rec := NewRecorder(nil, func(n int, sql string, params []interface{}) ([]Record, error) {
		return Rows(n, 1), nil
	})

	ctx := context.Background()
	rec.Query(ctx, "SELECT 1")
	rows, _ := rec.Query(ctx, "SELECT 2", "p")

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[1].SQL != "SELECT 2" || len(calls[1].Params) != 1 {
		t.Errorf("unexpected second call %+v", calls[1])
	}
	if v, _ := rows[0].Get("id"); v.(int64) != 1 {
		t.Errorf("expected responder to see call index 1, got %v", v)
	}
}
