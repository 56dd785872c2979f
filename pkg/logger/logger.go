package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a structured zerolog logger. Loggers derived with With or
// Component share their parent's collector slot, so attaching a collector
// to the root reaches every component logger.
type Logger struct {
	zl        zerolog.Logger
	component string
	slot      *atomic.Pointer[LogCollector]
}

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr or a file path
	// TimeFormat defaults to RFC 3339 with nanoseconds.
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	zl := zerolog.New(out).Level(level).With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()
	return &Logger{zl: zl, slot: new(atomic.Pointer[LogCollector])}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), slot: new(atomic.Pointer[LogCollector])}
}

// With returns a child logger that always carries fields.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.key, f.value)
	}
	return &Logger{zl: ctx.Logger(), component: l.component, slot: l.slot}
}

// Component tags every entry with component=name.
func (l *Logger) Component(name string) *Logger {
	child := l.With(String("component", name))
	child.component = name
	return child
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }

// Error logs at error level and hands the entry to the collector, if any.
func (l *Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) emit(level zerolog.Level, msg string, fields []Field) {
	e := l.zl.WithLevel(level)
	for _, f := range fields {
		f.apply(e)
	}
	e.Msg(msg)

	if level < zerolog.ErrorLevel {
		return
	}
	c := l.slot.Load()
	if c == nil {
		return
	}
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file)) + ":" + strconv.Itoa(line)
	}
	values := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		values[f.key] = f.value
	}
	c.AddLog(level.String(), l.component, msg, values, caller)
}

// AddCollector starts aggregating error logs into batches published by
// cfg.Publisher. A collector already attached is flushed and replaced.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	sink := &Logger{zl: l.zl.With().Str("component", "log_collector").Logger(), slot: new(atomic.Pointer[LogCollector])}
	if old := l.slot.Swap(NewLogCollector(cfg, sink)); old != nil {
		old.Close()
	}
}

// RemoveCollector detaches the collector and publishes what it holds.
func (l *Logger) RemoveCollector() {
	if old := l.slot.Swap(nil); old != nil {
		old.Close()
	}
}

// Field is one structured key/value pair.
type Field struct {
	key   string
	value interface{}
	apply func(e *zerolog.Event)
}

func String(key, value string) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Str(key, value) }}
}

func Strings(key string, value []string) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Strs(key, value) }}
}

func Int(key string, value int) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Bool(key, value) }}
}

// Duration is rendered in milliseconds.
func Duration(key string, value time.Duration) Field {
	return Field{key, value.String(), func(e *zerolog.Event) { e.Dur(key, value) }}
}

// Error uses the "error" key and is omitted for a nil err.
func Error(err error) Field {
	if err == nil {
		return Field{zerolog.ErrorFieldName, nil, func(*zerolog.Event) {}}
	}
	return Field{zerolog.ErrorFieldName, err.Error(), func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, value interface{}) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Interface(key, value) }}
}
