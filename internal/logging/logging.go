package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var logger *slog.Logger

func init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	}
	logger = slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logf logs a printf-style message at info level. Retained for startup and
// migration lines.
func Logf(format string, v ...interface{}) {
	logger.Info(fmt.Sprintf(format, v...))
}

func Debug(msg string, args ...any) { logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warn(msg, args...) }
func Error(msg string, args ...any) { logger.Error(msg, args...) }

// DebugWithComponent logs at debug level with a component attribute.
func DebugWithComponent(component, msg string, args ...any) {
	logger.With("component", component).Debug(msg, args...)
}

// InfoWithComponent logs at info level with a component attribute.
func InfoWithComponent(component, msg string, args ...any) {
	logger.With("component", component).Info(msg, args...)
}

// WarnWithComponent logs at warn level with a component attribute.
func WarnWithComponent(component, msg string, args ...any) {
	logger.With("component", component).Warn(msg, args...)
}

// ErrorWithComponent logs at error level with a component attribute.
func ErrorWithComponent(component, msg string, args ...any) {
	logger.With("component", component).Error(msg, args...)
}
