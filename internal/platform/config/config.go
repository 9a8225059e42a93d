package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// SummaryImageURL is the base URL of the workout summary image renderer.
	// Empty disables summary image generation.
	SummaryImageURL string `env:"SUMMARY_IMAGE_URL"`

	// IdleWindow is the grace period after a user's own focus action during
	// which remote focus changes are not applied to the visible UI.
	IdleWindow time.Duration `env:"FOCUS_IDLE_WINDOW" default:"2s"`

	// ElapsedTickInterval controls how often elapsed session time is
	// recomputed and pushed to connected clients.
	ElapsedTickInterval time.Duration `env:"ELAPSED_TICK_INTERVAL" default:"1s"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.IdleWindow <= 0 {
		return errors.New("FOCUS_IDLE_WINDOW must be positive")
	}
	if cfg.ElapsedTickInterval <= 0 {
		return errors.New("ELAPSED_TICK_INTERVAL must be positive")
	}

	return nil
}
