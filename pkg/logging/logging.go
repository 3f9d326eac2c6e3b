// Package logging sets up the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"goon_chat/pkg/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below debug and is used for full prompt dumps.
const LevelTrace = slog.Level(-8)

const logFileName = "goon_chat.log"

// Rotation limits for the log file.
const (
	rotateSizeMB  = 5
	rotateBackups = 5
	rotateAgeDays = 14
)

// Init sends structured logs to a rotating file, cfg.LogFile or the default
// under the data dir. When the log directory can't be created logging is
// discarded and the error is returned.
func Init(cfg config.Config) (*slog.Logger, error) {
	path := strings.TrimSpace(cfg.LogFile)
	if path == "" {
		path = filepath.Join(config.DataDir(), "logs", logFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return install(cfg, io.Discard), err
	}
	return install(cfg, rotating(path)), nil
}

// InitWriter logs to out unless cfg names a log file that can be opened.
func InitWriter(cfg config.Config, out io.Writer) *slog.Logger {
	if strings.TrimSpace(cfg.LogFile) != "" {
		if logger, err := Init(cfg); err == nil {
			return logger
		}
	}
	return install(cfg, out)
}

func rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotateSizeMB,
		MaxBackups: rotateBackups,
		MaxAge:     rotateAgeDays,
		Compress:   true,
	}
}

func install(cfg config.Config, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLogLevel(cfg.LogLevel),
		ReplaceAttr: levelNames,
	}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.LogFormat), "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// levelNames prints LevelTrace as TRACE instead of DEBUG-4.
func levelNames(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
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
