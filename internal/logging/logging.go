// Package logging builds the slog logger used by the commands: human-readable
// text on the console, plus an optional rotating JSON file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/lumberjack.v3"

	"github.com/rickgao/chainbridge/internal/config"
)

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger writing text to console and, when cfg.File is set,
// JSON to a size-rotated file. The returned closer flushes the file.
func New(cfg config.LogConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{slog.NewTextHandler(console, opts)}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		roller, err := newRoller(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(roller, opts))
		closer = roller
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer, nil
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

func newRoller(cfg config.LogConfig) (io.WriteCloser, error) {
	maxBytes := int64(cfg.MaxSizeMB) * 1024 * 1024
	if cfg.Compress {
		return lumberjack.New(
			lumberjack.WithFileName(cfg.File),
			lumberjack.WithMaxBytes(maxBytes),
			lumberjack.WithMaxBackups(cfg.MaxBackups),
			lumberjack.WithMaxDays(cfg.MaxAgeDays),
			lumberjack.WithCompress(),
		)
	}
	return lumberjack.New(
		lumberjack.WithFileName(cfg.File),
		lumberjack.WithMaxBytes(maxBytes),
		lumberjack.WithMaxBackups(cfg.MaxBackups),
		lumberjack.WithMaxDays(cfg.MaxAgeDays),
	)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
