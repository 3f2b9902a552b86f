package query

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/library"
	"github.com/ha1tch/qconsole/pkg/log"
)

const ceiling = 5000

func newEngine(rec *backend.Recorder, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return NewEngine(Config{PageCeiling: ceiling, DefaultRowEnd: 50}, rec, opts...)
}

// pages answers the first len(sizes) calls with pages of the given sizes
// and every later call with a count row holding total.
func pages(total int64, sizes ...int) backend.Responder {
	return func(n int, sql string, params []interface{}) ([]backend.Record, error) {
		if strings.HasPrefix(sql, "SELECT COUNT(*)") {
			return []backend.Record{backend.NewRecord([]string{"totalrecordcount"}, []interface{}{total})}, nil
		}
		if n >= len(sizes) {
			return nil, nil
		}
		return backend.Rows(n*ceiling+1, sizes[n]), nil
	}
}

type mapLookup map[string]string

func (m mapLookup) Find(ctx context.Context, name string) ([]library.FileInfo, error) {
	if _, ok := m[name]; !ok {
		return nil, nil
	}
	return []library.FileInfo{{ID: name, Name: name}}, nil
}

func (m mapLookup) Load(ctx context.Context, id string) (*library.File, error) {
	return &library.File{FileInfo: library.FileInfo{ID: id, Name: id}, Contents: m[id]}, nil
}

func TestPaginate_FullPagesThenShortPage(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
	}{
		{"one full page", []int{ceiling, 10}},
		{"three full pages", []int{ceiling, ceiling, ceiling, 1234}},
		{"full pages then empty", []int{ceiling, ceiling, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := backend.NewRecorder(backend.SuiteQLDialect, pages(0, tt.sizes...))
			e := newEngine(rec)

			records, elapsed, err := e.Paginate(context.Background(), "SELECT * FROM T\n", 1, 50000, true)
			if err != nil {
				t.Fatalf("paginate: %v", err)
			}

			calls := rec.Calls()
			if len(calls) != len(tt.sizes) {
				t.Fatalf("expected %d backend calls, got %d", len(tt.sizes), len(calls))
			}
			want := 0
			for _, s := range tt.sizes {
				want += s
			}
			if len(records) != want {
				t.Errorf("expected %d records, got %d", want, len(records))
			}
			if elapsed < 0 {
				t.Errorf("negative elapsed time %v", elapsed)
			}
		})
	}
}

func TestPaginate_WindowAdvancesBeginOnly(t *testing.T) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, pages(0, ceiling, ceiling, 7))
	e := newEngine(rec)

	if _, _, err := e.Paginate(context.Background(), "SELECT * FROM T\n", 1, 50, true); err != nil {
		t.Fatalf("paginate: %v", err)
	}

	calls := rec.Calls()
	wantSuffix := []string{
		"BETWEEN 1 AND 50)",
		"BETWEEN 5001 AND 50)",
		"BETWEEN 10001 AND 50)",
	}
	for i, call := range calls {
		if !strings.HasSuffix(call.SQL, wantSuffix[i]) {
			t.Errorf("call %d: expected suffix %q, got %q", i, wantSuffix[i], call.SQL)
		}
		if !strings.Contains(call.SQL, "ROWNUM AS ROWNUMBER") {
			t.Errorf("call %d: expected windowed SQL, got %q", i, call.SQL)
		}
	}
}

func TestPaginate_FirstPageShort(t *testing.T) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, pages(0, 4999))
	e := newEngine(rec)

	records, _, err := e.Paginate(context.Background(), "SELECT * FROM T\n", 1, 100000, true)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if len(rec.Calls()) != 1 {
		t.Errorf("expected exactly one call, got %d", len(rec.Calls()))
	}
	if len(records) != 4999 {
		t.Errorf("expected 4999 records, got %d", len(records))
	}
}

func TestExecute_PaginationDisabled(t *testing.T) {
	for _, bounds := range [][2]int{{0, 0}, {1, 50}, {700, 3}} {
		rec := backend.NewRecorder(backend.SuiteQLDialect, pages(0, 12))
		e := newEngine(rec)

		result, err := e.Execute(context.Background(), Request{
			Query:    "SELECT * FROM T",
			RowBegin: bounds[0],
			RowEnd:   bounds[1],
		})
		if err != nil {
			t.Fatalf("execute %v: %v", bounds, err)
		}

		calls := rec.Calls()
		if len(calls) != 1 {
			t.Fatalf("expected one call for %v, got %d", bounds, len(calls))
		}
		if calls[0].SQL != "SELECT * FROM T\n" {
			t.Errorf("expected unwindowed query, got %q", calls[0].SQL)
		}
		if len(result.Records) != 12 {
			t.Errorf("expected 12 records, got %d", len(result.Records))
		}
	}
}

func TestExecute_TotalsSkippedForEmptyResult(t *testing.T) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, pages(99, 0))
	e := newEngine(rec)

	result, err := e.Execute(context.Background(), Request{
		Query: "SELECT * FROM T", RowBegin: 1, RowEnd: 50,
		PaginationEnabled: true, ReturnTotals: true,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rec.Calls()) != 1 {
		t.Errorf("expected no count query, got %d calls", len(rec.Calls()))
	}
	if result.TotalRecordCount != nil {
		t.Errorf("expected no total, got %d", *result.TotalRecordCount)
	}

	data, _ := json.Marshal(result)
	if strings.Contains(string(data), "totalRecordCount") {
		t.Errorf("totalRecordCount must be absent: %s", data)
	}
	if !strings.Contains(string(data), `"records":[]`) {
		t.Errorf("expected empty records array: %s", data)
	}
}

func TestExecute_EndToEnd(t *testing.T) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, pages(50, 50))
	e := newEngine(rec)

	result, err := e.Execute(context.Background(), Request{
		Query:             "SELECT * FROM T",
		RowBegin:          1,
		RowEnd:            50,
		PaginationEnabled: true,
		ViewsEnabled:      false,
		ReturnTotals:      true,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(result.Records) != 50 {
		t.Errorf("expected 50 records, got %d", len(result.Records))
	}
	if result.TotalRecordCount == nil || *result.TotalRecordCount != 50 {
		t.Errorf("expected total 50, got %v", result.TotalRecordCount)
	}
	if result.ElapsedTime < 0 {
		t.Errorf("negative elapsed time %d", result.ElapsedTime)
	}

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected window + count calls, got %d", len(calls))
	}
	wantCount := "SELECT COUNT(*) AS TotalRecordCount FROM ( SELECT * FROM T\n )"
	if calls[1].SQL != wantCount {
		t.Errorf("got  %q\nwant %q", calls[1].SQL, wantCount)
	}
}

func TestExecute_DefaultBounds(t *testing.T) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, pages(0, 3))
	e := newEngine(rec)

	if _, err := e.Execute(context.Background(), Request{Query: "SELECT 1", PaginationEnabled: true}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if sql := rec.Calls()[0].SQL; !strings.HasSuffix(sql, "BETWEEN 1 AND 50)") {
		t.Errorf("expected default window 1..50, got %q", sql)
	}
}

func TestExecute_InvalidBounds(t *testing.T) {
	tests := []struct {
		name       string
		begin, end int
	}{
		{"negative begin", -5, 10},
		{"end before begin", 100, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := backend.NewRecorder(nil, nil)
			e := newEngine(rec)

			_, err := e.Execute(context.Background(), Request{
				Query: "SELECT 1", RowBegin: tt.begin, RowEnd: tt.end, PaginationEnabled: true,
			})
			if !qerrors.IsCode(err, qerrors.ErrCodeRequestInvalid) {
				t.Fatalf("expected ErrCodeRequestInvalid, got %v", err)
			}
			if len(rec.Calls()) != 0 {
				t.Error("expected no backend calls")
			}
		})
	}
}

func TestExecute_ViewsSubstitutedBeforeExecution(t *testing.T) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, pages(3, 3))
	lookup := mapLookup{"active.sql": "SELECT id FROM Customer WHERE isinactive = 'F'"}
	e := newEngine(rec, WithViews(lookup))

	_, err := e.Execute(context.Background(), Request{
		Query: "SELECT * FROM #active", RowBegin: 1, RowEnd: 50,
		PaginationEnabled: true, ViewsEnabled: true, ReturnTotals: true,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	for i, call := range rec.Calls() {
		if strings.Contains(call.SQL, "#active") {
			t.Errorf("call %d still contains the macro: %q", i, call.SQL)
		}
		if !strings.Contains(call.SQL, "( SELECT id FROM Customer WHERE isinactive = 'F' ) AS active") {
			t.Errorf("call %d missing substituted view: %q", i, call.SQL)
		}
	}
}

func TestExecute_UnresolvedViewIssuesNoQuery(t *testing.T) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, pages(0, 3))
	e := newEngine(rec, WithViews(mapLookup{}))

	_, err := e.Execute(context.Background(), Request{
		Query: "SELECT * FROM #ghost", RowBegin: 1, RowEnd: 50,
		PaginationEnabled: true, ViewsEnabled: true,
	})
	if !qerrors.IsCode(err, qerrors.ErrCodeUnresolvedView) {
		t.Fatalf("expected ErrCodeUnresolvedView, got %v", err)
	}
	if err.Error() != "Unresolved View ghost.sql" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if len(rec.Calls()) != 0 {
		t.Errorf("expected no backend calls, got %d", len(rec.Calls()))
	}
}

func TestExecute_ViewsPassThrough(t *testing.T) {
	tests := []struct {
		name         string
		viewsEnabled bool
		opts         []Option
	}{
		{"flag off", false, []Option{WithViews(mapLookup{})}},
		{"no library", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := backend.NewRecorder(backend.SuiteQLDialect, nil)
			e := newEngine(rec, tt.opts...)

			_, err := e.Execute(context.Background(), Request{Query: "SELECT * FROM #ghost", ViewsEnabled: tt.viewsEnabled})
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if got := rec.Calls()[0].SQL; got != "SELECT * FROM #ghost\n" {
				t.Errorf("expected untouched query, got %q", got)
			}
		})
	}
}

func TestExecute_ErrorReturnsNoRecords(t *testing.T) {
	failure := errors.New("Invalid search query")
	rec := backend.NewRecorder(backend.SuiteQLDialect, func(n int, sql string, params []interface{}) ([]backend.Record, error) {
		if n == 1 {
			return nil, failure
		}
		return backend.Rows(1, ceiling), nil
	})
	e := newEngine(rec)

	result, err := e.Execute(context.Background(), Request{
		Query: "SELECT * FROM T", RowBegin: 1, RowEnd: 50000, PaginationEnabled: true,
	})
	if result != nil {
		t.Errorf("expected no partial result, got %d records", len(result.Records))
	}
	if !errors.Is(err, failure) {
		t.Errorf("expected backend error in chain, got %v", err)
	}
	if !qerrors.IsCode(err, qerrors.ErrCodeExecWindow) {
		t.Errorf("expected ErrCodeExecWindow, got %v", err)
	}
}

func TestExecute_CountFailureFailsOperation(t *testing.T) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, func(n int, sql string, params []interface{}) ([]backend.Record, error) {
		if n == 1 {
			return nil, errors.New("count refused")
		}
		return backend.Rows(1, 5), nil
	})
	e := newEngine(rec)

	result, err := e.Execute(context.Background(), Request{
		Query: "SELECT * FROM T", RowBegin: 1, RowEnd: 50, PaginationEnabled: true, ReturnTotals: true,
	})
	if result != nil || !qerrors.IsCode(err, qerrors.ErrCodeExecCount) {
		t.Fatalf("expected count failure, got result=%v err=%v", result, err)
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int64
	}{
		{int64(7), 7},
		{int32(7), 7},
		{float64(7), 7},
		{json.Number("7"), 7},
		{"7", 7},
	}
	for _, tt := range tests {
		got, err := toInt64(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("toInt64(%#v) = %d, %v", tt.in, got, err)
		}
	}
	if _, err := toInt64([]byte("7")); err == nil {
		t.Error("expected error for []byte")
	}
}
