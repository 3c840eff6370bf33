// Package logging configures the global zerolog logger shared by both
// binaries: console output for local development, JSON for production,
// selected by LOG_FORMAT.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the global logger's output shape.
type Config struct {
	Level  string // trace..panic, default info
	Format string // "json" or "console", default json
}

// Init configures the global zerolog logger. Call once at process startup.
func Init(cfg Config) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output = os.Stderr
	var w zerolog.ConsoleWriter
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// log is the process-wide logger configured by Init, mirroring zerolog's own
// package-level convenience logger.
var log struct {
	zerolog.Logger
}

// Logger returns the process-wide logger.
func Logger() zerolog.Logger {
	return log.Logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
