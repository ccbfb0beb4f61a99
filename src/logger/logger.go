package logger

import (
	"fmt"
	"os"
	"strings"

	"resilient-feed/src/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -----------------------------------------------------------------------------

// Logger is the printf-style application logger shared by every component.
type Logger struct {
	name  string
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// -----------------------------------------------------------------------------

// NewLogger builds a zap-backed logger from the application config.
func NewLogger(config *config.Config, name string) *Logger {
	level := zap.NewAtomicLevelAt(ParseLevel(config.LogLevel))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(config.LogFormat, "console") {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named(name)

	return &Logger{
		name:  name,
		sugar: base.Sugar(),
		level: level,
	}
}

// -----------------------------------------------------------------------------

// NewNopLogger returns a logger that discards everything, for tests.
func NewNopLogger() *Logger {
	return &Logger{
		name:  "nop",
		sugar: zap.NewNop().Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

// -----------------------------------------------------------------------------

// NewFromZap wraps an existing zap logger (used by tests with an observer core).
func NewFromZap(base *zap.Logger, name string) *Logger {
	return &Logger{
		name:  name,
		sugar: base.Named(name).Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

// -----------------------------------------------------------------------------

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// -----------------------------------------------------------------------------

// Name returns the logger name
func (l *Logger) Name() string {
	return l.name
}

// -----------------------------------------------------------------------------

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// -----------------------------------------------------------------------------

func (l *Logger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warning(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// Critical logs at error level with a critical marker; it never exits the process.
func (l *Logger) Critical(format string, args ...any) {
	l.sugar.Errorw(fmt.Sprintf(format, args...), "severity", "critical")
}

// -----------------------------------------------------------------------------

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
