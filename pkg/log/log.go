// Package log provides structured logging for qconsole.
//
// Entries are grouped into categories so that each concern can be tuned
// independently:
//   - System: server lifecycle, configuration, listeners
//   - Request: request decoding and operation dispatch
//   - Query: view resolution, windowed fetches, total counts
//   - Library: saved query files, workbooks, remote library
//   - Document: document submission and rendering
//   - Audit: authentication and rate limiting decisions
//   - Performance: elapsed times and row volumes
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents a logging severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelOff // Disable logging entirely
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON writes the level name rather than its ordinal.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseLevel parses a level string.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	case "OFF", "NONE":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Category identifies the logging category.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryRequest     Category = "request"
	CategoryQuery       Category = "query"
	CategoryLibrary     Category = "library"
	CategoryDocument    Category = "document"
	CategoryAudit       Category = "audit"
	CategoryPerformance Category = "performance"
)

var allCategories = []Category{
	CategorySystem,
	CategoryRequest,
	CategoryQuery,
	CategoryLibrary,
	CategoryDocument,
	CategoryAudit,
	CategoryPerformance,
}

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota // Human-readable text
	FormatJSON               // One JSON object per line
)

// ParseFormat maps "text" or "json" to a Format.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Entry represents a single log entry.
type Entry struct {
	Time      time.Time              `json:"time"`
	Level     Level                  `json:"level"`
	Category  Category               `json:"category"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	ErrorStr  string                 `json:"error,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// Logger writes categorised entries to one or more outputs.
type Logger struct {
	mu sync.RWMutex

	levels  map[Category]Level
	outputs map[Category]io.Writer

	format        Format
	includeCaller bool

	asyncEnabled bool
	entryChan    chan *Entry
	wg           sync.WaitGroup
	closed       int32

	entriesLogged  int64
	entriesDropped int64
}

// Config holds logger configuration.
type Config struct {
	// Default level for all categories
	DefaultLevel Level

	// Per-category level overrides
	CategoryLevels map[Category]Level

	Output io.Writer // os.Stderr if nil
	Format Format

	IncludeCaller bool // Include file:line in log entries
	AsyncBuffer   int  // Async buffer size (0 = sync logging)
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		DefaultLevel: LevelInfo,
		Output:       os.Stderr,
		Format:       FormatText,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	l := &Logger{
		levels:        make(map[Category]Level, len(allCategories)),
		outputs:       make(map[Category]io.Writer, len(allCategories)),
		format:        cfg.Format,
		includeCaller: cfg.IncludeCaller,
	}

	for _, cat := range allCategories {
		l.levels[cat] = cfg.DefaultLevel
		l.outputs[cat] = cfg.Output
	}
	for cat, level := range cfg.CategoryLevels {
		l.levels[cat] = level
	}

	if cfg.AsyncBuffer > 0 {
		l.asyncEnabled = true
		l.entryChan = make(chan *Entry, cfg.AsyncBuffer)
		l.wg.Add(1)
		go l.asyncWriter()
	}

	return l
}

// Discard returns a logger that writes nothing. Useful in tests.
func Discard() *Logger {
	return New(Config{DefaultLevel: LevelOff, Output: io.Discard})
}

// SetLevel sets the log level for a category.
func (l *Logger) SetLevel(cat Category, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[cat] = level
}

// SetOutput sets the output writer for a category.
func (l *Logger) SetOutput(cat Category, w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs[cat] = w
}

// Close flushes buffered entries when async logging is enabled.
func (l *Logger) Close() error {
	if !l.asyncEnabled {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}
	close(l.entryChan)
	l.wg.Wait()
	return nil
}

// Stats returns logging statistics.
func (l *Logger) Stats() (logged, dropped int64) {
	return atomic.LoadInt64(&l.entriesLogged), atomic.LoadInt64(&l.entriesDropped)
}

// System returns a category logger for lifecycle events.
func (l *Logger) System() *CategoryLogger { return l.category(CategorySystem) }

// Request returns a category logger for request decoding and dispatch.
func (l *Logger) Request() *CategoryLogger { return l.category(CategoryRequest) }

// Query returns a category logger for query execution.
func (l *Logger) Query() *CategoryLogger { return l.category(CategoryQuery) }

// Library returns a category logger for file library and workbook access.
func (l *Logger) Library() *CategoryLogger { return l.category(CategoryLibrary) }

// Document returns a category logger for document generation.
func (l *Logger) Document() *CategoryLogger { return l.category(CategoryDocument) }

// Audit returns a category logger for security events.
func (l *Logger) Audit() *CategoryLogger { return l.category(CategoryAudit) }

// Performance returns a category logger for timing events.
func (l *Logger) Performance() *CategoryLogger { return l.category(CategoryPerformance) }

func (l *Logger) category(cat Category) *CategoryLogger {
	return &CategoryLogger{logger: l, category: cat}
}

func (l *Logger) log(ctx context.Context, level Level, cat Category, msg string, err error, fields ...interface{}) {
	l.mu.RLock()
	catLevel := l.levels[cat]
	output := l.outputs[cat]
	format := l.format
	includeCaller := l.includeCaller
	l.mu.RUnlock()

	if level < catLevel || catLevel == LevelOff {
		return
	}

	entry := &Entry{
		Time:     time.Now(),
		Level:    level,
		Category: cat,
		Message:  msg,
	}
	if err != nil {
		entry.ErrorStr = err.Error()
	}
	if ctx != nil {
		entry.RequestID = RequestIDFromContext(ctx)
		entry.SessionID = SessionIDFromContext(ctx)
	}

	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields)/2)
		for i := 0; i < len(fields)-1; i += 2 {
			if key, ok := fields[i].(string); ok {
				entry.Fields[key] = fields[i+1]
			}
		}
	}

	if includeCaller {
		if _, file, line, ok := runtime.Caller(3); ok {
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	if l.asyncEnabled && atomic.LoadInt32(&l.closed) == 0 {
		select {
		case l.entryChan <- entry:
			atomic.AddInt64(&l.entriesLogged, 1)
		default:
			atomic.AddInt64(&l.entriesDropped, 1)
		}
		return
	}
	l.writeEntry(output, format, entry)
	atomic.AddInt64(&l.entriesLogged, 1)
}

func (l *Logger) writeEntry(w io.Writer, format Format, entry *Entry) {
	var line string
	switch format {
	case FormatJSON:
		data, _ := json.Marshal(entry)
		line = string(data) + "\n"
	default:
		line = formatText(entry)
	}
	w.Write([]byte(line))
}

func formatText(entry *Entry) string {
	var buf strings.Builder

	buf.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" ")
	buf.WriteString(fmt.Sprintf("%-5s", entry.Level.String()))
	buf.WriteString(" [")
	buf.WriteString(string(entry.Category))
	buf.WriteString("] ")

	if entry.Caller != "" {
		buf.WriteString(entry.Caller)
		buf.WriteString(" ")
	}

	buf.WriteString(entry.Message)

	if entry.ErrorStr != "" {
		buf.WriteString(" error=")
		buf.WriteString(fmt.Sprintf("%q", entry.ErrorStr))
	}
	if entry.RequestID != "" {
		buf.WriteString(" request_id=")
		buf.WriteString(entry.RequestID)
	}
	if entry.SessionID != "" {
		buf.WriteString(" session_id=")
		buf.WriteString(entry.SessionID)
	}

	// Sorted so that lines are stable across runs.
	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(" ")
		buf.WriteString(k)
		buf.WriteString("=")
		buf.WriteString(fmt.Sprintf("%v", entry.Fields[k]))
	}

	buf.WriteString("\n")
	return buf.String()
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for entry := range l.entryChan {
		l.mu.RLock()
		output := l.outputs[entry.Category]
		format := l.format
		l.mu.RUnlock()

		l.writeEntry(output, format, entry)
	}
}

// CategoryLogger is a logger bound to a specific category.
type CategoryLogger struct {
	logger   *Logger
	category Category
	ctx      context.Context
	fields   []interface{}
}

// Ctx returns a copy that stamps request and session IDs from ctx.
func (cl *CategoryLogger) Ctx(ctx context.Context) *CategoryLogger {
	c := *cl
	c.ctx = ctx
	return &c
}

// WithFields returns a copy with preset fields.
func (cl *CategoryLogger) WithFields(fields ...interface{}) *CategoryLogger {
	c := *cl
	c.fields = append(append([]interface{}{}, cl.fields...), fields...)
	return &c
}

func (cl *CategoryLogger) emit(level Level, msg string, err error, fields []interface{}) {
	if len(cl.fields) > 0 {
		fields = append(append([]interface{}{}, cl.fields...), fields...)
	}
	cl.logger.log(cl.ctx, level, cl.category, msg, err, fields...)
}

func (cl *CategoryLogger) Debug(msg string, fields ...interface{}) {
	cl.emit(LevelDebug, msg, nil, fields)
}

func (cl *CategoryLogger) Info(msg string, fields ...interface{}) {
	cl.emit(LevelInfo, msg, nil, fields)
}

func (cl *CategoryLogger) Warn(msg string, fields ...interface{}) {
	cl.emit(LevelWarn, msg, nil, fields)
}

func (cl *CategoryLogger) Error(msg string, err error, fields ...interface{}) {
	cl.emit(LevelError, msg, err, fields)
}

func (cl *CategoryLogger) Fatal(msg string, err error, fields ...interface{}) {
	cl.emit(LevelFatal, msg, err, fields)
}

type contextKey int

const (
	contextKeyRequestID contextKey = iota
	contextKeySessionID
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// WithSessionID adds a session ID to the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID, sessionID)
}

// RequestIDFromContext retrieves the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// SessionIDFromContext retrieves the session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeySessionID).(string); ok {
		return id
	}
	return ""
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(DefaultConfig())
		}
	})
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultLoggerOnce.Do(func() {})
	defaultLogger = l
}
