// Package logging provides structured logging for the documind CLI.
// It wraps zerolog to provide a consistent logging interface with support for
// JSON output and human-readable console output.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ContextKey type for context values to avoid collisions.
type ContextKey string

// Context keys for trace information.
const (
	TraceIDKey   ContextKey = "trace_id"
	RequestIDKey ContextKey = "request_id"
)

// Level represents logging severity levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level Level

	// ServiceName is included in all log entries.
	ServiceName string

	// Environment is included in all log entries.
	Environment string

	// JSONFormat enables JSON output when true, human-readable when false.
	JSONFormat bool

	// Output sets the writer for logs (defaults to os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a Config suitable for interactive CLI use.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: "documind",
		Environment: "cli",
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

	// WithContext returns a new Logger that extracts trace information from the context.
	WithContext(ctx context.Context) Logger

	// Zerolog returns the underlying zerolog.Logger.
	Zerolog() zerolog.Logger
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

// OpenLogFile opens (creating if needed) an append-only log file. Interactive
// sessions own the terminal and log here instead of stderr.
func OpenLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// ParseLevel converts a level name to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

func (l *logger) Zerolog() zerolog.Logger {
	return l.zl
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

// With returns a new logger with additional fields.
func (l *logger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = addFieldToContext(ctx, f)
	}
	return &logger{zl: ctx.Logger()}
}

// WithContext returns a new logger carrying the request id and the trace id.
// The trace id comes from an explicit context value or, failing that, from
// the active span.
func (l *logger) WithContext(ctx context.Context) Logger {
	newLogger := l.zl.With()

	traceID, _ := ctx.Value(TraceIDKey).(string)
	if traceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
	}
	if traceID != "" {
		newLogger = newLogger.Str("trace_id", traceID)
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.Str("request_id", requestID)
	}

	return &logger{zl: newLogger.Logger()}
}

// ContextWithRequestID returns a context carrying the given request id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func addFields(event *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			event = event.Str(f.Key, v)
		case int:
			event = event.Int(f.Key, v)
		case int64:
			event = event.Int64(f.Key, v)
		case uint64:
			event = event.Uint64(f.Key, v)
		case float64:
			event = event.Float64(f.Key, v)
		case bool:
			event = event.Bool(f.Key, v)
		case error:
			event = event.Err(v)
		case time.Duration:
			event = event.Dur(f.Key, v)
		case time.Time:
			event = event.Time(f.Key, v)
		case fmt.Stringer:
			event = event.Stringer(f.Key, v)
		default:
			event = event.Interface(f.Key, v)
		}
	}
	return event
}

func addFieldToContext(ctx zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return ctx.Str(f.Key, v)
	case int:
		return ctx.Int(f.Key, v)
	case int64:
		return ctx.Int64(f.Key, v)
	case uint64:
		return ctx.Uint64(f.Key, v)
	case float64:
		return ctx.Float64(f.Key, v)
	case bool:
		return ctx.Bool(f.Key, v)
	case error:
		return ctx.Err(v)
	case time.Duration:
		return ctx.Dur(f.Key, v)
	case time.Time:
		return ctx.Time(f.Key, v)
	case fmt.Stringer:
		return ctx.Stringer(f.Key, v)
	default:
		return ctx.Interface(f.Key, v)
	}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string, fields ...Field)      {}
func (n *nopLogger) Info(msg string, fields ...Field)       {}
func (n *nopLogger) Warn(msg string, fields ...Field)       {}
func (n *nopLogger) Error(msg string, fields ...Field)      {}
func (n *nopLogger) With(fields ...Field) Logger            { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger { return n }
func (n *nopLogger) Zerolog() zerolog.Logger                { return zerolog.Nop() }

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() Logger {
	return &nopLogger{}
}
