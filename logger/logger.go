package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// With returns a Logger that adds the given key/value pairs to every entry.
	With(args ...interface{}) Logger

	GetLogLevel() LogLevel
	SetLogLevel(level LogLevel)
}

// ParseLevel maps "debug", "info", "warn", "error" and "fatal" to a LogLevel.
// Unknown values map to LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	case "fatal":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// slogFatal sits above slog.LevelError so that setting the level to fatal
// mutes everything except Fatal calls.
const slogFatal = slog.Level(12)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	case LogLevelFatal:
		return slogFatal
	default:
		return slog.LevelInfo
	}
}

type logger struct {
	level *slog.LevelVar
	sl    *slog.Logger
	exit  func(int)
}

// New returns a Logger writing to stdout. format is "json" or "text".
func New(level LogLevel, format string) Logger {
	return NewWriter(os.Stdout, level, format)
}

// NewWriter is like New but writes to w.
func NewWriter(w io.Writer, level LogLevel, format string) Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())

	opts := &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= slogFatal {
					a.Value = slog.StringValue("FATAL")
				}
			}
			return a
		},
	}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	return &logger{level: lv, sl: slog.New(h), exit: os.Exit}
}

func (l *logger) log(level LogLevel, args ...interface{}) {
	l.sl.Log(context.Background(), level.slogLevel(), strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func (l *logger) logf(level LogLevel, format string, args ...interface{}) {
	l.sl.Log(context.Background(), level.slogLevel(), strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

func (l *logger) Debug(args ...interface{}) {
	l.log(LogLevelDebug, args...)
}

func (l *logger) Info(args ...interface{}) {
	l.log(LogLevelInfo, args...)
}

func (l *logger) Warn(args ...interface{}) {
	l.log(LogLevelWarn, args...)
}

func (l *logger) Error(args ...interface{}) {
	l.log(LogLevelError, args...)
}

func (l *logger) Fatal(args ...interface{}) {
	l.log(LogLevelFatal, args...)
	l.exit(1)
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.logf(LogLevelDebug, format, args...)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.logf(LogLevelInfo, format, args...)
}

func (l *logger) Warnf(format string, args ...interface{}) {
	l.logf(LogLevelWarn, format, args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.logf(LogLevelError, format, args...)
}

func (l *logger) Fatalf(format string, args ...interface{}) {
	l.logf(LogLevelFatal, format, args...)
	l.exit(1)
}

func (l *logger) With(args ...interface{}) Logger {
	return &logger{level: l.level, sl: l.sl.With(args...), exit: l.exit}
}

func (l *logger) GetLogLevel() LogLevel {
	switch lv := l.level.Level(); {
	case lv >= slogFatal:
		return LogLevelFatal
	case lv >= slog.LevelError:
		return LogLevelError
	case lv >= slog.LevelWarn:
		return LogLevelWarn
	case lv >= slog.LevelInfo:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}

func (l *logger) SetLogLevel(level LogLevel) {
	l.level.Set(level.slogLevel())
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() Logger {
	return NewWriter(io.Discard, LogLevelFatal, "text")
}
