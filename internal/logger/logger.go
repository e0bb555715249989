package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New constructs the service logger. level is a zerolog level name; unknown
// values fall back to info. Development gets a human-readable console writer.
func New(level, environment string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "eduva-ai-pipeline").
		Logger()

	if environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}
