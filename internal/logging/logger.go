package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// logFilePerm is the permission mode for the on-disk log file.
const logFilePerm = 0o600

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
func NewLogger(env string) *slog.Logger {
	return newLogger(env, os.Stdout)
}

// NewFileLogger creates a logger that writes to stdout and appends to
// patcher.log under dir (created if missing). The returned close
// function releases the log file.
func NewFileLogger(env, dir string) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, "patcher.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerm)
	if err != nil {
		return nil, nil, err
	}

	return newLogger(env, io.MultiWriter(os.Stdout, f)), f.Close, nil
}

func newLogger(env string, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
