// Package logging builds structured loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures logger
type Config struct {
	// Level is one of debug, info, warn, error
	Level string
	// Format is either json or text
	Format string
	// File is log file path; empty means stderr
	File string
	// MaxSize is max log file size in MB before rotation
	MaxSize int
	// MaxBackups is max number of rotated files kept
	MaxBackups int
	// MaxAge is max number of days rotated files are kept
	MaxAge int
	// Compress compresses rotated files
	Compress bool
}

// ParseLevel returns slog level named s, defaulting to info.
func ParseLevel(s string) slog.Level {
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

// New creates new logger configured by c.
func New(c Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if c.File != "" {
		w = &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
		}
	}

	return NewWithWriter(w, c)
}

// NewWithWriter creates new logger writing to w.
func NewWithWriter(w io.Writer, c Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(c.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "timestamp"
			}
			return a
		},
	}

	var h slog.Handler
	switch strings.ToLower(c.Format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

// Discard returns a logger which drops all records.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
