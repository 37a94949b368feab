package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger tagged with the deploy environment.
// Development gets debug level so local match pipelines are traceable.
func New(environment string) *slog.Logger {
	level := slog.LevelInfo
	if environment == "development" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("environment", environment)
}
