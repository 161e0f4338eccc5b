package logger

import (
	"log/slog"
	"os"

	"brand-deck-platform/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging based on configuration
func InitLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.GinMode == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug",
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	Logger = slog.New(handler.WithAttrs([]slog.Attr{
		slog.String("service", "brand-deck-platform"),
	}))

	Logger.Info("structured logging initialized", "level", level.String())
}

// ForBrand returns a logger that stamps every record with the brand id,
// so multi-tenant events stay filterable without repeating the key at
// each call site.
func ForBrand(brandID string) *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger.With("brand_id", brandID)
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
