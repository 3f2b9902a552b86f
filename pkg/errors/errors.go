// Package errors provides structured error handling for qconsole.
//
// Errors carry a numeric code, the operation that failed and context fields.
// The code is what reaches the client in the Result Envelope, alongside the
// human readable message.
//
// Error codes follow a hierarchical scheme:
//   - 1xxx: Configuration errors
//   - 2xxx: Request errors
//   - 3xxx: View resolution errors
//   - 4xxx: Query execution errors
//   - 5xxx: Library and workbook errors
//   - 6xxx: Document errors
//   - 9xxx: Internal errors
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Code is a numeric error code for programmatic handling.
type Code int

const (
	// Configuration errors (1xxx)
	ErrCodeConfigInvalid  Code = 1001
	ErrCodeConfigMissing  Code = 1002
	ErrCodeConfigParse    Code = 1003
	ErrCodeBackendUnknown Code = 1004
	ErrCodeBackendOpen    Code = 1005

	// Request errors (2xxx)
	ErrCodeRequestMalformed Code = 2001
	ErrCodeRequestInvalid   Code = 2002
	ErrCodeUnsupportedOp    Code = 2003
	ErrCodeUnauthorized     Code = 2004
	ErrCodeRateLimited      Code = 2005

	// View resolution errors (3xxx)
	ErrCodeUnresolvedView Code = 3001
	ErrCodeViewLookup     Code = 3002

	// Execution errors (4xxx)
	ErrCodeExecFailed Code = 4001
	ErrCodeExecWindow Code = 4002
	ErrCodeExecCount  Code = 4003
	ErrCodeExecScan   Code = 4004

	// Library and workbook errors (5xxx)
	ErrCodeLibraryDisabled  Code = 5001
	ErrCodeLibraryNotFound  Code = 5002
	ErrCodeLibraryRead      Code = 5003
	ErrCodeLibraryWrite     Code = 5004
	ErrCodeLibraryEmpty     Code = 5005
	ErrCodeWorkbookDisabled Code = 5101
	ErrCodeWorkbookNotFound Code = 5102
	ErrCodeWorkbookEmpty    Code = 5103
	ErrCodeRemoteDisabled   Code = 5201
	ErrCodeRemoteFetch      Code = 5202

	// Document errors (6xxx)
	ErrCodeDocumentNoSession Code = 6001
	ErrCodeDocumentTemplate  Code = 6002
	ErrCodeDocumentRender    Code = 6003

	// Internal errors (9xxx)
	ErrCodeInternal       Code = 9001
	ErrCodeNotImplemented Code = 9002
	ErrCodePanic          Code = 9003
)

// String returns the error code as a string.
func (c Code) String() string {
	return fmt.Sprintf("E%04d", int(c))
}

// Category returns the category for this code.
func (c Code) Category() string {
	switch {
	case c >= 1000 && c < 2000:
		return "configuration"
	case c >= 2000 && c < 3000:
		return "request"
	case c >= 3000 && c < 4000:
		return "view"
	case c >= 4000 && c < 5000:
		return "execution"
	case c >= 5000 && c < 6000:
		return "library"
	case c >= 6000 && c < 7000:
		return "document"
	case c >= 9000:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a structured error with code, context, and optional cause.
type Error struct {
	Code    Code
	Message string

	Fields map[string]interface{}
	Cause  error

	Stack  []Frame
	Time   time.Time
	OpName string // Operation that failed (e.g. "Engine.Paginate", "FSStore.Save")
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Format implements fmt.Formatter; %+v prints the code, fields and stack.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s %s: %s\n", e.Time.Format(time.RFC3339), e.Code, e.Message)
			if e.OpName != "" {
				fmt.Fprintf(f, "  Operation: %s\n", e.OpName)
			}
			for k, v := range e.Fields {
				fmt.Fprintf(f, "  %s: %v\n", k, v)
			}
			if e.Cause != nil {
				fmt.Fprintf(f, "  Caused by: %v\n", e.Cause)
			}
			for _, frame := range e.Stack {
				fmt.Fprintf(f, "    %s\n      %s:%d\n", frame.Function, frame.File, frame.Line)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(f, e.Error())
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	}
}

// Builder helps construct errors fluently.
type Builder struct {
	code    Code
	message string
	cause   error
	fields  map[string]interface{}
	op      string
	stack   bool
}

// New starts building a new error with the given code.
func New(code Code, message string) *Builder {
	return &Builder{code: code, message: message}
}

// Newf starts building a new error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Builder {
	return &Builder{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code Code, message string) *Builder {
	return &Builder{code: code, message: message, cause: cause}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(cause error, code Code, format string, args ...interface{}) *Builder {
	return &Builder{code: code, message: fmt.Sprintf(format, args...), cause: cause}
}

// WithField adds a context field.
func (b *Builder) WithField(key string, value interface{}) *Builder {
	if b.fields == nil {
		b.fields = make(map[string]interface{})
	}
	b.fields[key] = value
	return b
}

// WithOp sets the operation name.
func (b *Builder) WithOp(op string) *Builder {
	b.op = op
	return b
}

// WithStack captures a stack trace.
func (b *Builder) WithStack() *Builder {
	b.stack = true
	return b
}

// Build creates the Error.
func (b *Builder) Build() *Error {
	e := &Error{
		Code:    b.code,
		Message: b.message,
		Cause:   b.cause,
		Fields:  b.fields,
		OpName:  b.op,
		Time:    time.Now(),
	}
	if b.stack {
		e.Stack = captureStack(2)
	}
	return e
}

// Err is a shorthand for Build() that returns the error interface.
func (b *Builder) Err() error {
	return b.Build()
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	callersFrames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := callersFrames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			frames = append(frames, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// InvalidInput creates an invalid request field error.
func InvalidInput(field, reason string) *Builder {
	return Newf(ErrCodeRequestInvalid, "invalid %s: %s", field, reason).
		WithField("field", field).
		WithField("reason", reason)
}

// Internal creates an internal error (for unexpected conditions).
func Internal(msg string) *Builder {
	return New(ErrCodeInternal, msg).WithStack()
}

// GetCode extracts the error code from an error, or returns ErrCodeInternal.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetFields extracts context fields from an error.
func GetFields(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// IsCode checks if any error in the chain has a specific code.
func IsCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, category string) bool {
	return GetCode(err).Category() == category
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
