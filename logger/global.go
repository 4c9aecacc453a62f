package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// global is set by New; until then the package-level functions use a
// console logger on stderr so command output on stdout stays clean
var global atomic.Pointer[zap.Logger]

func setGlobalLoggerInternal(l *zap.Logger) {
	global.Store(l)
}

func getGlobalLogger() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	fallback := buildFallbackLogger()
	if global.CompareAndSwap(nil, fallback) {
		return fallback
	}
	return global.Load()
}

func buildFallbackLogger() *zap.Logger {
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Encoding:         "console",
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetGlobalLogger replaces the global logger.
// Build it with AddCallerSkip(1) to keep caller information accurate.
func SetGlobalLogger(l *zap.Logger) {
	setGlobalLoggerInternal(l)
}

// GetGlobalLogger returns the current global logger
func GetGlobalLogger() *zap.Logger {
	return getGlobalLogger()
}

func Debug(msg string, fields ...zap.Field) {
	getGlobalLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	getGlobalLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	getGlobalLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	getGlobalLogger().Error(msg, fields...)
}

// Sync flushes buffered entries of the global logger
func Sync() error {
	return getGlobalLogger().Sync()
}
