// Package logger provides structured logging for the TrustChecker platform core.
//
// Uses zap with an AtomicLevel so operators can raise or lower verbosity at
// runtime. JSON output in production, console output for local development.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global      *zap.Logger
	atomicLevel zap.AtomicLevel
	once        sync.Once
)

// Init initializes the global logger.
// level: debug, info, warn, error. format: json or console.
func Init(level, format string) error {
	var initErr error
	once.Do(func() {
		atomicLevel = zap.NewAtomicLevel()
		if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
			initErr = fmt.Errorf("parse log level %q: %w", level, err)
			return
		}

		var cfg zap.Config
		switch format {
		case "console":
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		default:
			cfg = zap.NewProductionConfig()
		}
		cfg.Level = atomicLevel

		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			initErr = fmt.Errorf("build logger: %w", err)
			return
		}
		global = l
	})
	return initErr
}

// SetLevel changes the log level at runtime.
func SetLevel(level string) error {
	return atomicLevel.UnmarshalText([]byte(level))
}

// Level returns the current log level.
func Level() zapcore.Level {
	return atomicLevel.Level()
}

// L returns the global logger. Panics if Init has not been called.
func L() *zap.Logger {
	if global == nil {
		panic("logger.Init() must be called before logger.L()")
	}
	return global
}

// Debug logs a message at DebugLevel.
func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

// Info logs a message at InfoLevel.
func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }

// Warn logs a message at WarnLevel.
func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

// Error logs a message at ErrorLevel.
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Fatal logs a message at FatalLevel then exits.
func Fatal(msg string, fields ...zap.Field) { L().Fatal(msg, fields...) }

// With creates a child logger with additional fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}
