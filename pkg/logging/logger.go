// Package logging provides structured logging for penf-live.
// It wraps zerolog behind a small interface with JSON output for servers and
// human-readable console output for interactive CLI use.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ContextKey type for context values to avoid collisions.
type ContextKey string

// Context keys for request-scoped values.
const (
	RequestIDKey ContextKey = "request_id"
	SessionIDKey ContextKey = "session_id"
)

// Level represents logging severity levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel converts a user-supplied string into a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Config holds logger configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level Level

	// ServiceName is included in all log entries.
	ServiceName string

	// Environment is included in all log entries (e.g., "development", "production").
	Environment string

	// JSONFormat enables JSON output when true, human-readable when false.
	JSONFormat bool

	// Output sets the writer for logs (defaults to os.Stderr so command
	// output on stdout stays machine-readable).
	Output io.Writer
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: "penf-live",
		Environment: "development",
		JSONFormat:  false,
		Output:      os.Stderr,
	}
}

// Logger is the interface for structured logging.
type Logger interface {
	// Debug logs a debug message with optional fields.
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields.
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger with the given fields attached to all subsequent logs.
	With(fields ...Field) Logger

	// WithContext returns a new Logger carrying trace and request identifiers from ctx.
	WithContext(ctx context.Context) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field with the given key and value.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates a Field for an error.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

type logger struct {
	zl zerolog.Logger
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zl := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger()

	return &logger{zl: zl}
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *logger) Debug(msg string, fields ...Field) {
	addFields(l.zl.Debug(), fields).Msg(msg)
}

func (l *logger) Info(msg string, fields ...Field) {
	addFields(l.zl.Info(), fields).Msg(msg)
}

func (l *logger) Warn(msg string, fields ...Field) {
	addFields(l.zl.Warn(), fields).Msg(msg)
}

func (l *logger) Error(msg string, fields ...Field) {
	addFields(l.zl.Error(), fields).Msg(msg)
}

func (l *logger) With(fields ...Field) Logger {
	zctx := l.zl.With()
	for _, f := range fields {
		zctx = writeField(zctx, f)
	}
	return &logger{zl: zctx.Logger()}
}

// WithContext attaches the active span's trace ID plus any request or
// session identifiers stored on ctx.
func (l *logger) WithContext(ctx context.Context) Logger {
	zctx := l.zl.With()

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		zctx = zctx.Str("trace_id", sc.TraceID().String())
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		zctx = zctx.Str("request_id", requestID)
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		zctx = zctx.Str("session_id", sessionID)
	}

	return &logger{zl: zctx.Logger()}
}

// fieldWriter is the typed-field API shared by *zerolog.Event and
// zerolog.Context.
type fieldWriter[T any] interface {
	Str(key, val string) T
	Int(key string, i int) T
	Int64(key string, i int64) T
	Float64(key string, f float64) T
	Bool(key string, b bool) T
	Err(err error) T
	Dur(key string, d time.Duration) T
	Time(key string, t time.Time) T
	Interface(key string, i interface{}) T
}

func writeField[T fieldWriter[T]](w T, f Field) T {
	switch v := f.Value.(type) {
	case string:
		return w.Str(f.Key, v)
	case int:
		return w.Int(f.Key, v)
	case int64:
		return w.Int64(f.Key, v)
	case float64:
		return w.Float64(f.Key, v)
	case bool:
		return w.Bool(f.Key, v)
	case error:
		return w.Err(v)
	case time.Duration:
		return w.Dur(f.Key, v)
	case time.Time:
		return w.Time(f.Key, v)
	default:
		return w.Interface(f.Key, v)
	}
}

func addFields(event *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		event = writeField(event, f)
	}
	return event
}

var (
	globalMu sync.RWMutex
	global   Logger
)

// SetGlobal sets the process-wide logger returned by Default.
func SetGlobal(l Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// Default returns the logger installed with SetGlobal, or a no-op logger
// when none has been set.
func Default() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return NewNopLogger()
	}
	return global
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string, fields ...Field)      {}
func (n *nopLogger) Info(msg string, fields ...Field)       {}
func (n *nopLogger) Warn(msg string, fields ...Field)       {}
func (n *nopLogger) Error(msg string, fields ...Field)      {}
func (n *nopLogger) With(fields ...Field) Logger            { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger { return n }

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() Logger {
	return &nopLogger{}
}
