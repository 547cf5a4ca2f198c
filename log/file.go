package log

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingFileConfig configures size/age-based log-file rotation.
type RotatingFileConfig struct {
	// Path is the log file to write. Required.
	Path string
	// MaxSizeMB is the size in megabytes a log file can reach before it
	// is rotated. Defaults to 100 when zero.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain. Defaults to
	// 5 when zero.
	MaxBackups int
	// MaxAgeDays is the number of days to retain old log files. Defaults
	// to 28 when zero.
	MaxAgeDays int
	// Compress gzip-compresses rotated files.
	Compress bool
}

// DefaultRotatingFileConfig returns rotation defaults for the file at path.
func DefaultRotatingFileConfig(path string) RotatingFileConfig {
	return RotatingFileConfig{
		Path:       path,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// NewFile creates a Logger that writes JSON log lines to both stderr and a
// rotated file, so an operator tailing the console still sees everything
// that lands in the on-disk log.
func NewFile(level slog.Level, cfg RotatingFileConfig) *Logger {
	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   cfg.Compress,
	}
	w := io.MultiWriter(os.Stderr, rotator)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{inner: slog.New(h)}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
