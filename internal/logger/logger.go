package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the process-wide logger. It points at slog.Default until Init runs.
var Logger = slog.Default()

// Options controls Init.
type Options struct {
	Debug  bool
	Format string // "text" (default) or "json"
	Output io.Writer
}

// Init builds the process logger and installs it as the slog default.
func Init(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug || os.Getenv("DEBUG") == "true" {
		level = slog.LevelDebug
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
	}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, handlerOpts)
	} else {
		h = slog.NewTextHandler(out, handlerOpts)
	}

	Logger = slog.New(h)
	slog.SetDefault(Logger)
	return Logger
}

// For returns a child logger tagged with a component name.
func For(component string) *slog.Logger {
	return Logger.With("component", component)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}
