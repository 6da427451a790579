// Package logging builds the process-wide zerolog logger: a level-parsed,
// writer-selected constructor following cortex-avatar's internal/logging
// logger setup, trimmed to what an API service needs (no in-memory log
// history or frontend streaming callback — those serve a GUI log viewer
// this service doesn't have).
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level   string // debug, info, warn, error
	Console bool   // human-readable console writer instead of JSON
	Service string
}

// New builds the root logger for the process.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer interface{ Write([]byte) (int, error) } = os.Stdout
	if cfg.Console {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	service := cfg.Service
	if service == "" {
		service = "ipassist-core"
	}

	return zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Logger()
}
