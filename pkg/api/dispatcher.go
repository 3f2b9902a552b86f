// Package api decodes console requests, routes them to their operation and
// encodes every outcome as a JSON Result Envelope: the operation's payload
// on success, {"error":{"message","code"}} on failure.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ha1tch/qconsole/pkg/document"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/library"
	"github.com/ha1tch/qconsole/pkg/log"
	"github.com/ha1tch/qconsole/pkg/metrics"
	"github.com/ha1tch/qconsole/pkg/query"
	"github.com/ha1tch/qconsole/pkg/remote"
	"github.com/ha1tch/qconsole/pkg/workbook"
)

// FunctionField names the operation in a request body.
const FunctionField = "function"

// Dispatcher routes requests to handlers.
type Dispatcher struct {
	engine    *query.Engine
	library   library.Store
	workbooks *workbook.Store
	remote    *remote.Library
	documents *document.Generator
	validator *Validator
	logger    *log.Logger

	// strict answers unknown operations with an error envelope rather
	// than an empty body.
	strict bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLibrary sets the saved query library.
func WithLibrary(store library.Store) Option {
	return func(d *Dispatcher) {
		d.library = store
	}
}

// WithWorkbooks enables the workbook operations.
func WithWorkbooks(store *workbook.Store) Option {
	return func(d *Dispatcher) {
		d.workbooks = store
	}
}

// WithRemote enables the remote library operations.
func WithRemote(lib *remote.Library) Option {
	return func(d *Dispatcher) {
		d.remote = lib
	}
}

// WithDocuments sets the document generator.
func WithDocuments(g *document.Generator) Option {
	return func(d *Dispatcher) {
		d.documents = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithStrictOperations makes unknown operations return an error envelope.
func WithStrictOperations(strict bool) Option {
	return func(d *Dispatcher) {
		d.strict = strict
	}
}

// NewDispatcher creates a dispatcher. Without WithLibrary the library
// operations report that no folder is configured; without WithDocuments a
// generator over engine with a private session store is used.
func NewDispatcher(engine *query.Engine, opts ...Option) (*Dispatcher, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		engine:    engine,
		library:   library.Disabled{},
		validator: validator,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.documents == nil {
		d.documents = document.NewGenerator(engine, document.NewSessionStore(), d.logger)
	}
	return d, nil
}

// Dispatch handles one POST body and returns the response body. A nil
// result means no body is written.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, body []byte) []byte {
	rlog := d.logger.Request().Ctx(ctx)

	if !json.Valid(body) {
		rlog.Error("FATAL: Failed to parse request body", nil, "body", string(body))
		metrics.ObserveRequest("malformed", false)
		return []byte(MalformedBody)
	}

	name := functionName(body)
	op, ok := ParseOperation(name)
	if !ok || op == OpDocumentGenerate {
		rlog.Warn("Payload - Unsupported Function", FunctionField, name)
		metrics.ObserveRequest("unsupported", false)
		if d.strict {
			return ErrorEnvelope(qerrors.Newf(qerrors.ErrCodeUnsupportedOp, "unsupported operation: %s", name).
				WithField(FunctionField, name).
				Err())
		}
		return nil
	}

	payload, err := d.handle(ctx, op, sessionID, body)
	metrics.ObserveRequest(op.String(), err == nil)
	if err != nil {
		rlog.Error(op.String()+" error", err,
			"operation", op.String(),
			"code", qerrors.GetCode(err).String(),
		)
		return ErrorEnvelope(err)
	}
	rlog.Debug("operation completed", "operation", op.String())
	return encode(payload)
}

// GenerateDocument renders the session's submitted document.
func (d *Dispatcher) GenerateDocument(ctx context.Context, sessionID string) (*document.Document, error) {
	doc, err := d.documents.Generate(ctx, sessionID)
	metrics.ObserveRequest(OpDocumentGenerate.String(), err == nil)
	if err != nil {
		d.logger.Request().Ctx(ctx).Error("documentGenerate error", err,
			"operation", OpDocumentGenerate.String(),
			"code", qerrors.GetCode(err).String(),
		)
	}
	return doc, err
}

func (d *Dispatcher) handle(ctx context.Context, op Operation, sessionID string, body []byte) (interface{}, error) {
	if err := d.validator.Validate(op, body); err != nil {
		return nil, err
	}

	switch op {
	case OpQueryExecute:
		return d.queryExecute(ctx, body)
	case OpDocumentSubmit:
		return d.documentSubmit(ctx, sessionID, body)
	case OpSQLFileExists:
		return d.sqlFileExists(ctx, body)
	case OpSQLFileLoad:
		return d.sqlFileLoad(ctx, body)
	case OpSQLFileSave:
		return d.sqlFileSave(ctx, body)
	case OpLocalLibraryFilesGet:
		return d.localLibraryFilesGet(ctx)
	case OpWorkbookLoad:
		return d.workbookLoad(ctx, body)
	case OpWorkbooksGet:
		return d.workbooksGet(ctx)
	case OpRemoteLibraryFilesGet:
		return d.remoteLibraryFilesGet(ctx)
	case OpRemoteLibraryFileLoad:
		return d.remoteLibraryFileLoad(ctx, body)
	case OpDocumentGenerate, OpUnknown:
	}
	return nil, qerrors.Internal(fmt.Sprintf("operation %s has no POST handler", op)).Err()
}

// functionName returns the body's function field. A body that is not an
// object, or whose field is not a string, yields its raw text.
func functionName(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	raw, ok := fields[FunctionField]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return string(raw)
	}
	return name
}

func decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeRequestInvalid, "invalid request").Err()
	}
	return nil
}
