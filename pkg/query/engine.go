// Package query runs operator queries against the backend: view macro
// expansion, windowed pagination and the optional total count.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/library"
	"github.com/ha1tch/qconsole/pkg/log"
	"github.com/ha1tch/qconsole/pkg/metrics"
	"github.com/ha1tch/qconsole/pkg/views"
)

// Config holds the engine settings.
type Config struct {
	// PageCeiling is the backend's per-call row ceiling. A window that
	// returns fewer rows ends pagination.
	PageCeiling int

	// DefaultRowEnd sizes the first window when a request omits rowEnd.
	DefaultRowEnd int
}

// Request is one query execution request.
type Request struct {
	Query             string `json:"query"`
	RowBegin          int    `json:"rowBegin"`
	RowEnd            int    `json:"rowEnd"`
	PaginationEnabled bool   `json:"paginationEnabled"`
	ViewsEnabled      bool   `json:"viewsEnabled"`
	ReturnTotals      bool   `json:"returnTotals"`
}

// Result is the outcome of Execute.
type Result struct {
	Records []backend.Record `json:"records"`

	// ElapsedTime is the fetch time in milliseconds. View resolution and the
	// total count are not included.
	ElapsedTime int64 `json:"elapsedTime"`

	TotalRecordCount *int64 `json:"totalRecordCount,omitempty"`
}

// Engine executes queries.
type Engine struct {
	cfg    Config
	exec   backend.Executor
	views  views.Lookup
	logger *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithViews enables view macro expansion against lookup.
func WithViews(lookup views.Lookup) Option {
	return func(e *Engine) {
		e.views = lookup
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine over exec.
func NewEngine(cfg Config, exec backend.Executor, opts ...Option) *Engine {
	if cfg.PageCeiling <= 0 {
		cfg.PageCeiling = 5000
	}
	if cfg.DefaultRowEnd <= 0 {
		cfg.DefaultRowEnd = 50
	}
	e := &Engine{
		cfg:    cfg,
		exec:   exec,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine settings.
func (e *Engine) Config() Config { return e.cfg }

// Executor returns the backend executor.
func (e *Engine) Executor() backend.Executor { return e.exec }

// ViewsAvailable reports whether a macro lookup is configured.
func (e *Engine) ViewsAvailable() bool { return e.views != nil }

// Execute resolves views, fetches the records and, when asked for and
// at least one record came back, counts the total.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	begin, end, err := e.Bounds(req.RowBegin, req.RowEnd, req.PaginationEnabled)
	if err != nil {
		return nil, err
	}

	sqlText, err := e.Prepare(ctx, req.Query, req.ViewsEnabled)
	if err != nil {
		return nil, err
	}

	records, elapsed, err := e.Paginate(ctx, sqlText, begin, end, req.PaginationEnabled)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Records:     records,
		ElapsedTime: elapsed.Milliseconds(),
	}

	if req.ReturnTotals && len(records) > 0 {
		total, err := e.Count(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		result.TotalRecordCount = &total
	}

	e.logger.Performance().Ctx(ctx).Info("query executed",
		"records", len(records),
		"elapsed_ms", result.ElapsedTime,
		"paginated", req.PaginationEnabled,
		"totals", result.TotalRecordCount != nil,
	)
	return result, nil
}

// Prepare appends a newline so a trailing line comment ends before the
// wrapper's closing parenthesis, then expands view macros when enabled and a
// lookup is configured.
func (e *Engine) Prepare(ctx context.Context, text string, viewsEnabled bool) (string, error) {
	sqlText := text + "\n"
	if !viewsEnabled || e.views == nil {
		return sqlText, nil
	}

	resolved, err := views.Resolve(ctx, sqlText, countingLookup{e.views})
	if err != nil {
		e.logger.Query().Ctx(ctx).Error("view resolution failed", err,
			"filename", qerrors.GetFields(err)["filename"])
		return "", err
	}
	return resolved, nil
}

// Bounds applies the defaults for a paginated request: rowBegin 0 means 1
// and rowEnd 0 means a first window of DefaultRowEnd rows.
func (e *Engine) Bounds(begin, end int, paginated bool) (int, int, error) {
	if !paginated {
		return begin, end, nil
	}
	if begin == 0 {
		begin = 1
	}
	if end == 0 {
		end = begin + e.cfg.DefaultRowEnd - 1
	}
	if begin < 1 {
		return 0, 0, qerrors.InvalidInput("rowBegin", "must be at least 1").
			WithField("rowBegin", begin).
			Err()
	}
	if end < begin {
		return 0, 0, qerrors.InvalidInput("rowEnd", "must not be less than rowBegin").
			WithField("rowBegin", begin).
			WithField("rowEnd", end).
			Err()
	}
	return begin, end, nil
}

// Paginate fetches the records of sqlText. Without pagination the query runs
// once as is. With pagination it runs inside a row number window starting at
// begin; each full page (PageCeiling rows) moves the window start forward by
// PageCeiling and fetches again. The window end stays at end throughout;
// only a short page ends the loop. The returned duration spans all backend
// calls.
func (e *Engine) Paginate(ctx context.Context, sqlText string, begin, end int, paginated bool) ([]backend.Record, time.Duration, error) {
	qlog := e.logger.Query().Ctx(ctx)
	start := time.Now()

	if !paginated {
		metrics.ObserveBackendCall(metrics.KindSingle)
		records, err := e.exec.Query(ctx, sqlText)
		if err != nil {
			qlog.Error("query failed", err)
			return nil, 0, err
		}
		if records == nil {
			records = make([]backend.Record, 0)
		}
		elapsed := time.Since(start)
		observe(elapsed, len(records))
		return records, elapsed, nil
	}

	dialect := e.exec.Dialect()
	records := make([]backend.Record, 0)
	windowBegin := begin
	calls := 0
	for {
		calls++
		metrics.ObserveBackendCall(metrics.KindWindow)
		page, err := e.exec.Query(ctx, dialect.WindowSQL(sqlText, windowBegin, end))
		if err != nil {
			qlog.Error("window fetch failed", err, "begin", windowBegin, "end", end)
			return nil, 0, qerrors.Wrap(err, qerrors.ErrCodeExecWindow, "window fetch failed").
				WithOp("Engine.Paginate").
				WithField("begin", windowBegin).
				WithField("end", end).
				Err()
		}
		records = append(records, page...)
		qlog.Debug("window fetched", "begin", windowBegin, "end", end, "rows", len(page))

		if len(page) < e.cfg.PageCeiling {
			break
		}
		windowBegin += e.cfg.PageCeiling
	}

	elapsed := time.Since(start)
	observe(elapsed, len(records))
	e.logger.Performance().Ctx(ctx).Debug("pagination finished",
		"calls", calls, "records", len(records), "elapsed_ms", elapsed.Milliseconds())
	return records, elapsed, nil
}

// Count returns the number of rows sqlText produces.
func (e *Engine) Count(ctx context.Context, sqlText string) (int64, error) {
	metrics.ObserveBackendCall(metrics.KindCount)
	rows, err := e.exec.Query(ctx, e.exec.Dialect().CountSQL(sqlText))
	if err != nil {
		e.logger.Query().Ctx(ctx).Error("total count failed", err)
		return 0, qerrors.Wrap(err, qerrors.ErrCodeExecCount, "total count failed").
			WithOp("Engine.Count").
			Err()
	}
	if len(rows) == 0 {
		return 0, qerrors.New(qerrors.ErrCodeExecCount, "total count returned no rows").
			WithOp("Engine.Count").
			Err()
	}

	v, ok := rows[0].Get(backend.TotalCountColumn)
	if !ok {
		return 0, qerrors.New(qerrors.ErrCodeExecCount, "total count column missing").
			WithOp("Engine.Count").
			WithField("columns", rows[0].Columns()).
			Err()
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, qerrors.Wrap(err, qerrors.ErrCodeExecCount, "total count is not an integer").
			WithOp("Engine.Count").
			Err()
	}
	return n, nil
}

func observe(elapsed time.Duration, rows int) {
	metrics.QueryDuration.Observe(elapsed.Seconds())
	metrics.RowsReturned.Observe(float64(rows))
}

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case decimal.Decimal:
		return x.IntPart(), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}

// countingLookup records view lookups as backend calls.
type countingLookup struct {
	views.Lookup
}

func (c countingLookup) Find(ctx context.Context, name string) ([]library.FileInfo, error) {
	metrics.ObserveBackendCall(metrics.KindViewLookup)
	return c.Lookup.Find(ctx, name)
}
