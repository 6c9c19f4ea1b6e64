// Package log provides a structured logging system for taglog services.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Context keys for propagating logging context
const (
	RequestIDKey = "request_id"
	ComponentKey = "component"
	OperationKey = "operation"
	NamespaceKey = "namespace"
)

type ctxKey string

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
	Error     error
}

// Logger defines the core logging interface for taglog components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatalf(msg string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger

	// With adds multiple fields to the logger
	With(fields ...Field) Logger

	// WithContext adds request context to the Logger
	WithContext(ctx context.Context) Logger

	// WithComponent tags logs with a component name
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter defines the interface for formatting log entries.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output defines the interface for log outputs.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// LoggerOption is a function that configures a logger.
type LoggerOption func(*BaseLogger)

// BaseLogger implements the Logger interface.
type BaseLogger struct {
	level      *levelVar
	fields     Fields
	formatter  Formatter
	outputs    []Output
	redact     []string
	sampler    *sampler
	slogLogger *slog.Logger
}

// levelVar is shared between a logger and its derived children so SetLevel
// applies to the whole tree.
type levelVar struct{ v atomic.Int32 }

func newLevelVar(l Level) *levelVar {
	lv := &levelVar{}
	lv.v.Store(int32(l))
	return lv
}

func (lv *levelVar) get() Level  { return Level(lv.v.Load()) }
func (lv *levelVar) set(l Level) { lv.v.Store(int32(l)) }

// ContextWithRequestID stores a request id that WithContext will pick up.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey(RequestIDKey), id)
}

// ContextExtractor extracts logging context from a context.Context.
func ContextExtractor(ctx context.Context) Fields {
	fields := Fields{}
	if ctx == nil {
		return fields
	}
	for _, k := range []string{RequestIDKey, ComponentKey, OperationKey, NamespaceKey} {
		if v := ctx.Value(ctxKey(k)); v != nil {
			fields[k] = v
		}
	}
	return fields
}

// NewLogger creates a new logger with the given options.
func NewLogger(options ...LoggerOption) Logger {
	logger := &BaseLogger{
		level:     newLevelVar(InfoLevel),
		fields:    Fields{},
		formatter: &JSONFormatter{},
		outputs:   []Output{},
	}

	for _, option := range options {
		option(logger)
	}

	if len(logger.outputs) == 0 {
		logger.outputs = append(logger.outputs, &ConsoleOutput{})
	}

	logger.slogLogger = slog.New(newBridgeHandler(logger))
	return logger
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) {
		l.level.set(level)
	}
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) {
		l.formatter = formatter
	}
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) {
		l.outputs = append(l.outputs, output)
	}
}

// WithRedactedKeys replaces the values of the given field keys with [REDACTED].
func WithRedactedKeys(keys ...string) LoggerOption {
	return func(l *BaseLogger) {
		l.redact = append(l.redact, keys...)
	}
}

// WithSampling logs the first `initial` occurrences of a message, then every
// `thereafter`-th one. thereafter <= 0 disables sampling.
func WithSampling(initial, thereafter int) LoggerOption {
	return func(l *BaseLogger) {
		if thereafter > 0 {
			l.sampler = newSampler(initial, thereafter)
		}
	}
}

// derive returns a child logger sharing level, formatter and outputs, with
// extra fields merged over the current ones.
func (l *BaseLogger) derive(extra Fields) *BaseLogger {
	merged := make(Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	child := &BaseLogger{
		level:     l.level,
		fields:    merged,
		formatter: l.formatter,
		outputs:   l.outputs,
		redact:    l.redact,
		sampler:   l.sampler,
	}
	child.slogLogger = slog.New(newBridgeHandler(child))
	return child
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level.get() {
		return
	}
	attrs := attrsFromMap(l.fields)
	attrs = append(attrs, attrsFromFieldSlice(fields)...)
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, attrs...)
	if level == FatalLevel {
		l.closeOutputs()
		os.Exit(1)
	}
}

func (l *BaseLogger) logf(level Level, msg string, args []interface{}) {
	if level < l.level.get() {
		return
	}
	attrs := attrsFromMap(l.fields)
	attrs = append(attrs, argsToAttrs(args)...)
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, attrs...)
	if level == FatalLevel {
		l.closeOutputs()
		os.Exit(1)
	}
}

func (l *BaseLogger) closeOutputs() {
	for _, o := range l.outputs {
		_ = o.Close()
	}
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }
func (l *BaseLogger) Fatal(msg string, fields ...Field) { l.log(FatalLevel, msg, fields) }

func (l *BaseLogger) Debugf(msg string, args ...interface{}) { l.logf(DebugLevel, msg, args) }
func (l *BaseLogger) Infof(msg string, args ...interface{})  { l.logf(InfoLevel, msg, args) }
func (l *BaseLogger) Warnf(msg string, args ...interface{})  { l.logf(WarnLevel, msg, args) }
func (l *BaseLogger) Errorf(msg string, args ...interface{}) { l.logf(ErrorLevel, msg, args) }
func (l *BaseLogger) Fatalf(msg string, args ...interface{}) { l.logf(FatalLevel, msg, args) }

// WithField returns a logger carrying one extra field.
func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.derive(Fields{key: value})
}

// WithFields returns a logger carrying the provided fields.
func (l *BaseLogger) WithFields(fields Fields) Logger {
	return l.derive(fields)
}

// WithError attaches err under the "error" key.
func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.derive(Fields{"error": err.Error()})
}

// With adds structured fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	extra := make(Fields, len(fields))
	for _, f := range fields {
		extra[f.Key] = f.Value
	}
	return l.derive(extra)
}

// WithContext merges values found by ContextExtractor.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	fields := ContextExtractor(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.derive(fields)
}

// WithComponent tags the logger with a component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.derive(Fields{ComponentKey: component})
}

func (l *BaseLogger) SetLevel(level Level) { l.level.set(level) }
func (l *BaseLogger) GetLevel() Level      { return l.level.get() }
