package backend

import (
	"context"
	"sync"
)

// Call is one statement received by a Recorder.
type Call struct {
	SQL    string
	Params []interface{}
}

// Responder produces the result for the n-th call (zero based).
type Responder func(n int, sql string, params []interface{}) ([]Record, error)

// Recorder is a scripted Executor that records every statement it receives.
// The CLI uses it for dry runs and tests use it as a fake backend.
type Recorder struct {
	mu      sync.Mutex
	dialect Dialect
	respond Responder
	calls   []Call
}

// NewRecorder creates a recorder. A nil responder answers every call with
// no rows.
func NewRecorder(d Dialect, respond Responder) *Recorder {
	if d == nil {
		d = SuiteQLDialect
	}
	if respond == nil {
		respond = func(int, string, []interface{}) ([]Record, error) { return nil, nil }
	}
	return &Recorder{dialect: d, respond: respond}
}

// Query records the call and returns the responder's result.
func (r *Recorder) Query(ctx context.Context, sql string, params ...interface{}) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	n := len(r.calls)
	r.calls = append(r.calls, Call{SQL: sql, Params: params})
	r.mu.Unlock()

	return r.respond(n, sql, params)
}

// Calls returns a copy of the recorded statements.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Recorder) Dialect() Dialect { return r.dialect }

func (r *Recorder) Close() error { return nil }

// Rows builds n single-column records whose "id" values count up from start.
func Rows(start, n int) []Record {
	out := make([]Record, n)
	cols := []string{"id"}
	for i := range out {
		out[i] = NewRecord(cols, []interface{}{int64(start + i)})
	}
	return out
}
