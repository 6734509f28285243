// Package logging maps the LOG_LEVEL environment variable onto zerolog
// levels so both binaries honor the same knob.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// LevelFromEnv reads LOG_LEVEL. Defaults to info for the server-style
// binaries; the CLI lowers its default separately to keep the terminal UI
// clean.
func LevelFromEnv() zerolog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
