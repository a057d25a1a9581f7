package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/cyborgbet/cyborgbet/internal/pkg/config"
)

// Setup configures the global logger. All services log structured text to
// stdout; the level comes from config and defaults to info.
func Setup(cfg *config.LoggingConfig, serviceName string) *slog.Logger {
	level := parseLevel(cfg.Level)

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With("service", serviceName)
	slog.SetDefault(logger)

	return logger
}

func parseLevel(s string) slog.Level {
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
