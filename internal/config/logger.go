package config

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a level name or numeric slog level to a slog.Level.
func ParseLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Numeric slog levels (-4 is debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// NewLogger builds a text slog.Logger writing to the rotating log file
// described by lc. Relative file names resolve against root. The returned
// closer flushes and closes the file.
func NewLogger(lc LogConfig, root string, verbose bool) (*slog.Logger, io.Closer) {
	path := strings.TrimSpace(lc.Filename)
	if path == "" {
		path = Default().Log.Filename
	}
	if !filepath.IsAbs(path) && root != "" {
		path = filepath.Join(root, path)
	}

	level := ParseLevel(lc.Level, slog.LevelInfo)
	if verbose {
		level = slog.LevelDebug
	}

	logWriter := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    lc.MaxSize,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAge,
		Compress:   lc.Compress,
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: level <= slog.LevelDebug,
		Level:     level,
	})
	return slog.New(handler), logWriter
}
