// Package applog installs the process-wide structured logger.
package applog

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup installs a slog default logger writing text-formatted records to
// stdout and, when logFile is non-empty, to a rotating file (5 MiB x 5
// backups, spec §2.1/§6.1).
func Setup(levelName, logFile string) {
	level := parseLevel(levelName)

	var w io.Writer = os.Stdout
	if logFile != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    5, // megabytes
			MaxBackups: 5,
			Compress:   false,
		})
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
