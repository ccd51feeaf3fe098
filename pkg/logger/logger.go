// Package logger is a thin structured-logging layer over log/slog. Every
// component obtains a named child through Named and emits key-value fields,
// which keeps pipeline stages searchable in aggregated output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Field is a single structured log attribute.
type Field struct {
	Key   string
	Value any
}

func String(key, val string) Field  { return Field{Key: key, Value: val} }
func Int(key string, val int) Field { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field {
	return Field{Key: key, Value: val}
}
func Any(key string, val any) Field { return Field{Key: key, Value: val} }

// Error wraps err under the conventional "error" key.
func Error(err error) Field { return Field{Key: "error", Value: err} }

// Logger is the leveled interface handed to each component.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	// Named returns a child whose attributes are grouped under name.
	Named(name string) Logger
}

type slogAdapter struct {
	base *slog.Logger
}

func (l *slogAdapter) Named(name string) Logger {
	return &slogAdapter{base: l.base.WithGroup(name)}
}

func (l *slogAdapter) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	attrs := make([]slog.Attr, 0, len(fields)+1)
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	attrs = append(attrs, slog.String("source", callSite()))
	l.base.LogAttrs(ctx, level, msg, attrs...)
}

func (l *slogAdapter) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

func (l *slogAdapter) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

func (l *slogAdapter) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

func (l *slogAdapter) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
}

// Fatal logs at error level and terminates the process.
func (l *slogAdapter) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
	os.Exit(1)
}

// callSite reports the file:line of the logging call, shortened to the
// final two path elements.
func callSite() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown:0"
	}
	parts := strings.Split(file, "/")
	if n := len(parts); n > 2 {
		file = strings.Join(parts[n-2:], "/")
	}
	return fmt.Sprintf("%s:%d", file, line)
}

var (
	mu       sync.Mutex
	global   Logger
	levelVar slog.LevelVar
)

type settings struct {
	out  io.Writer
	json bool
}

// Option adjusts how Init builds the root handler.
type Option func(*settings)

// WithOutput directs log output to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.out = w
		}
	}
}

// WithJSONFormat switches the root handler to JSON records.
func WithJSONFormat() Option {
	return func(s *settings) { s.json = true }
}

func build(s settings) Logger {
	ho := &slog.HandlerOptions{Level: &levelVar}
	var h slog.Handler = slog.NewTextHandler(s.out, ho)
	if s.json {
		h = slog.NewJSONHandler(s.out, ho)
	}
	return &slogAdapter{base: slog.New(h)}
}

// Init builds the process-wide logger. The level starts at info and can be
// changed afterwards through SetLevelString.
func Init(opts ...Option) error {
	s := settings{out: os.Stdout}
	for _, opt := range opts {
		opt(&s)
	}
	levelVar.Set(slog.LevelInfo)
	mu.Lock()
	global = build(s)
	mu.Unlock()
	return nil
}

// Get returns the process-wide logger, initializing it with defaults when
// Init was never called.
func Get() Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		levelVar.Set(slog.LevelInfo)
		global = build(settings{out: os.Stdout})
	}
	return global
}

// Named returns a child of the process-wide logger.
func Named(name string) Logger { return Get().Named(name) }

// Sync exists for symmetry with buffered backends; slog writes through, so
// there is nothing to flush.
func Sync() error { return nil }

// SetLevel changes the level of every logger built from the shared handler.
func SetLevel(level slog.Level) { levelVar.Set(level) }

// SetLevelString parses level (debug, info, warn/warning, error,
// case-insensitive) and applies it. An empty string means info.
func SetLevelString(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		SetLevel(slog.LevelDebug)
	case "", "info":
		SetLevel(slog.LevelInfo)
	case "warn", "warning":
		SetLevel(slog.LevelWarn)
	case "error":
		SetLevel(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}
