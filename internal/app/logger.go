package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the slog logger both binaries share: JSON handler when
// LOG_FORMAT=json (the production default), text otherwise, source locations
// always on.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
