package logging

import (
	"log/slog"
	"os"
	"sync"
)

// Config holds logger configuration
type Config struct {
	Level      slog.Level
	JSONFormat bool // JSON in production, text for local debugging
	AddSource  bool
}

var (
	globalLogger *slog.Logger
	once         sync.Once
)

// Initialize configures the global logger. Safe to call once at startup;
// later calls are no-ops.
func Initialize(config Config) {
	once.Do(func() {
		opts := &slog.HandlerOptions{
			Level:     config.Level,
			AddSource: config.AddSource,
		}

		var handler slog.Handler
		if config.JSONFormat {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(os.Stdout, opts)
		}

		globalLogger = slog.New(handler)
		slog.SetDefault(globalLogger)
	})
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig(debugMode bool) Config {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	return Config{
		Level:      level,
		JSONFormat: !debugMode, // Human-readable in debug, JSON in production
		AddSource:  debugMode,
	}
}

// With returns a component-scoped logger
func With(args ...any) *slog.Logger {
	if globalLogger != nil {
		return globalLogger.With(args...)
	}
	return slog.Default().With(args...)
}

// Debug logs a debug message using the global logger
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs an info message using the global logger
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs a warning message using the global logger
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs an error message using the global logger
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}
