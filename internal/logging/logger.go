// Package logging is a small structured logger. Every line carries a
// component, optional trace ID, and key-value fields; output is JSON or
// plain text depending on configuration.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is log severity.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < DEBUG || l > FATAL {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Config holds logger configuration.
type Config struct {
	Level       string `json:"level"`
	Output      string `json:"output"` // "stdout", "stderr", or a file path
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"`
	JSONFormat  bool   `json:"json_format"`
}

type record struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger carries output settings plus bound fields. With* methods return
// copies; a Logger is safe to share once built.
type Logger struct {
	mu          *sync.Mutex
	out         io.Writer
	level       Level
	component   string
	traceID     string
	fields      map[string]interface{}
	includeFile bool
	jsonFormat  bool
}

// New creates a logger. An unopenable file path falls back to stdout.
func New(cfg *Config) *Logger {
	var out io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			out = f
		}
	}
	return &Logger{
		mu:          &sync.Mutex{},
		out:         out,
		level:       ParseLevel(cfg.Level),
		component:   cfg.Component,
		includeFile: cfg.IncludeFile,
		jsonFormat:  cfg.JSONFormat,
		fields:      map[string]interface{}{},
	}
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultOnce.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(&Config{Level: "INFO", JSONFormat: true})
		}
	})
	return defaultLogger
}

// SetDefault replaces the process-wide logger. Call once at startup before
// any component grabs a child logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

func (l *Logger) child() *Logger {
	c := *l
	c.fields = make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		c.fields[k] = v
	}
	return &c
}

// WithComponent returns a copy bound to a component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := l.child()
	c.component = component
	return c
}

// WithTraceID returns a copy bound to a trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	c := l.child()
	c.traceID = traceID
	return c
}

// WithField returns a copy with one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	c := l.child()
	c.fields[key] = value
	return c
}

// WithFields returns a copy with extra fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	c := l.child()
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

// WithError returns a copy with the error bound as a field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// emit renders one record. Trailing args are key-value pairs; an odd count
// puts the last arg under "extra".
func (l *Logger) emit(level Level, msg string, args []interface{}) {
	if level < l.level {
		return
	}

	rec := record{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Component: l.component,
		TraceID:   l.traceID,
	}

	if len(l.fields) > 0 || len(args) > 0 {
		rec.Fields = make(map[string]interface{}, len(l.fields)+len(args)/2+1)
		for k, v := range l.fields {
			rec.Fields[k] = v
		}
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		if err, isErr := args[i+1].(error); isErr && err != nil {
			rec.Fields[key] = err.Error()
			continue
		}
		rec.Fields[key] = args[i+1]
	}
	if len(args)%2 == 1 {
		rec.Fields["extra"] = args[len(args)-1]
	}

	if l.includeFile {
		if _, file, line, ok := runtime.Caller(2); ok {
			if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
				file = file[idx+1:]
			}
			rec.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonFormat {
		line, _ := json.Marshal(rec)
		fmt.Fprintln(l.out, string(line))
		return
	}
	l.writeText(rec)
}

func (l *Logger) writeText(rec record) {
	var b strings.Builder
	b.WriteString(rec.Timestamp[:19])
	fmt.Fprintf(&b, " [%-5s]", rec.Level)
	if rec.Component != "" {
		fmt.Fprintf(&b, " [%s]", rec.Component)
	}
	if rec.TraceID != "" {
		fmt.Fprintf(&b, " {%s}", rec.TraceID[:8])
	}
	b.WriteString(" ")
	b.WriteString(rec.Message)
	if len(rec.Fields) > 0 {
		b.WriteString(" |")
		for k, v := range rec.Fields {
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
	}
	if rec.Caller != "" {
		fmt.Fprintf(&b, " (%s)", rec.Caller)
	}
	fmt.Fprintln(l.out, b.String())
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.emit(DEBUG, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.emit(INFO, msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.emit(WARN, msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.emit(ERROR, msg, args) }

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.emit(FATAL, msg, args)
	os.Exit(1)
}

// Package-level shortcuts on the default logger.

func Debug(msg string, args ...interface{}) { Default().Debug(msg, args...) }
func Info(msg string, args ...interface{})  { Default().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { Default().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { Default().Error(msg, args...) }
func Fatal(msg string, args ...interface{}) { Default().Fatal(msg, args...) }

// WithComponent returns a child of the default logger bound to a component.
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}

// WithTraceID returns a child of the default logger bound to a trace ID.
func WithTraceID(traceID string) *Logger {
	return Default().WithTraceID(traceID)
}

// WithField returns a child of the default logger with one extra field.
func WithField(key string, value interface{}) *Logger {
	return Default().WithField(key, value)
}

// WithFields returns a child of the default logger with extra fields.
func WithFields(fields map[string]interface{}) *Logger {
	return Default().WithFields(fields)
}

// WithError returns a child of the default logger with the error bound.
func WithError(err error) *Logger {
	return Default().WithError(err)
}
