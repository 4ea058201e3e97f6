package logger

import (
	"io"
	"log/slog"
	"os"
)

var log *slog.Logger

func init() {
	configure(os.Stderr)
}

// configure builds the process logger. CHATBRIDGE_DEBUG=true lowers the level
// to debug and CHATBRIDGE_LOG_FORMAT=json switches to the JSON handler.
func configure(w io.Writer) {
	level := slog.LevelInfo
	if os.Getenv("CHATBRIDGE_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("CHATBRIDGE_LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	log = slog.New(handler)
}

func Debug(msg string, args ...any) {
	log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	log.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
