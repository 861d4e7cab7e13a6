package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Default is the default logger instance
	Default *zap.SugaredLogger
)

func init() {
	// Initialize with info level by default
	Default = New("info", os.Stdout)
}

// ParseLevel maps a textual level onto a zap level. Unknown values fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates a new structured JSON logger with the specified level and output
func New(level string, output io.Writer) *zap.SugaredLogger {
	return NewWithFormat(level, "json", output)
}

// NewText creates a new console-formatted logger (useful for development)
func NewText(level string, output io.Writer) *zap.SugaredLogger {
	return NewWithFormat(level, "console", output)
}

// NewWithFormat builds a logger for the given format ("json" or "console").
func NewWithFormat(level, format string, output io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "console") || strings.EqualFold(format, "text") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), zap.NewAtomicLevelAt(ParseLevel(level)))
	return zap.New(core).Sugar()
}

// SetDefault sets the default logger
func SetDefault(logger *zap.SugaredLogger) {
	Default = logger
	zap.ReplaceGlobals(logger.Desugar())
}

// Sync flushes buffered entries of the default logger.
func Sync() {
	_ = Default.Sync()
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Default.Debugw(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Default.Infow(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Default.Warnw(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Default.Errorw(msg, args...)
}

// With returns a logger with additional attributes
func With(args ...any) *zap.SugaredLogger {
	return Default.With(args...)
}
