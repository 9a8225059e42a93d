package logging

import (
	"log/slog"
	"os"

	"github.com/lassorfeasley/swiper.fit-sub002/internal/platform/correlation"
)

// InitLogger initializes the global slog logger with the specified level and
// format. level: "debug", "info", "warn", "error" (defaults to "info");
// format: "json" or "text" (defaults to "text").
func InitLogger(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(correlation.NewHandler(handler)))
}
