package infrastructure

import (
	"log/slog"
	"os"
)

// NewLogger installs a JSON slog logger as the process default. Development
// environments log at debug level.
func NewLogger(development bool) *slog.Logger {
	level := slog.LevelInfo
	if development {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
