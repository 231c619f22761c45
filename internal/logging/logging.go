// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New returns a text logger writing to w at level.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Setup installs a stderr logger as the slog default.
func Setup(level string) *slog.Logger {
	l := New(os.Stderr, level)
	slog.SetDefault(l)
	return l
}

// SetupFile installs a logger writing to a rotating file, for when the
// terminal belongs to the interactive chat. An empty path means
// <dataDir>/buddy.log. The returned closer flushes the file.
func SetupFile(path, dataDir, level string) (*slog.Logger, io.Closer, error) {
	if path == "" {
		path = filepath.Join(dataDir, "buddy.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	l := New(rotator, level)
	slog.SetDefault(l)
	return l, rotator, nil
}
