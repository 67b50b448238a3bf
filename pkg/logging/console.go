package logging

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ConsoleLogger writes human-oriented log lines to stderr through zap
type ConsoleLogger struct {
	log   *zap.Logger
	level Level
}

// NewConsoleLogger creates a stderr logger at the given level. Color is
// used for level names when color is true.
func NewConsoleLogger(level Level, color bool) *ConsoleLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.LevelKey = "level"
	encCfg.MessageKey = "message"
	encCfg.CallerKey = ""
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if color {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zapLevel(level),
	)
	return NewConsoleLoggerWithCore(core, level)
}

// NewConsoleLoggerWithCore wraps an existing zap core
func NewConsoleLoggerWithCore(core zapcore.Core, level Level) *ConsoleLogger {
	return &ConsoleLogger{log: zap.New(core), level: level}
}

// Debug logs a debug message
func (l *ConsoleLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.log.Debug(msg, zapFields(fields)...)
}

// Info logs an info message
func (l *ConsoleLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.log.Info(msg, zapFields(fields)...)
}

// Warn logs a warning message
func (l *ConsoleLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.log.Warn(msg, zapFields(fields)...)
}

// Error logs an error message
func (l *ConsoleLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	zf := zapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.log.Error(msg, zf...)
}

// WithFields returns a logger with additional fields
func (l *ConsoleLogger) WithFields(fields Fields) Logger {
	return &ConsoleLogger{log: l.log.With(zapFields(fields)...), level: l.level}
}

// Close flushes buffered entries. Syncing a terminal stderr fails on
// some platforms, so that error is dropped.
func (l *ConsoleLogger) Close() error {
	_ = l.log.Sync()
	return nil
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func zapFields(fields Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
