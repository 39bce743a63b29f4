// Package logging builds the process-wide slog logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/grandmasters-wiki/internal/config"
)

// FileName is the active log file inside LoggingConfig.LogDir
const FileName = "grandmasters-wiki.log"

// Output formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

var errNegativeRotation = errors.New("log rotation limits must not be negative")

// NewLogger creates the logger described by cfg. Records go to stdout and,
// when LogDir is set, to a size-rotated file as well. Zero rotation limits
// keep lumberjack's defaults.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := parseLevel(cfg.Level)

	if strings.TrimSpace(cfg.LogDir) == "" {
		return slog.New(newHandler(os.Stdout, cfg.Format, level, true)), nil
	}

	file, err := rotatingFile(cfg)
	if err != nil {
		return nil, err
	}

	// colour codes would end up in the file
	logger := slog.New(newHandler(io.MultiWriter(os.Stdout, file), cfg.Format, level, false))
	logger.Debug("logging to file", "path", file.Filename, "max_size_mb", file.MaxSize)
	return logger, nil
}

func rotatingFile(cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 || cfg.MaxAgeDays < 0 {
		return nil, fmt.Errorf("configuring log file: %w", errNegativeRotation)
	}

	dir := strings.TrimSpace(cfg.LogDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

// newHandler returns a JSON handler, or a tint handler for the text format
func newHandler(w io.Writer, format string, level slog.Level, color bool) slog.Handler {
	if strings.ToLower(strings.TrimSpace(format)) != FormatText {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !color,
	})
}

// parseLevel accepts slog level names ("debug", "WARN", "info+2") and
// "warning". Anything else is info.
func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
