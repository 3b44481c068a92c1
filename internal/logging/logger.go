// Package logging configures the global zerolog logger and the one-shot
// startup event.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnvVar overrides the configured level when set.
const LevelEnvVar = "RELAY_LOG_LEVEL"

// Init sets the global level and output. level is one of debug, info, warn
// or error (default info); RELAY_LOG_LEVEL wins over it. console selects the
// human-readable writer for terminals; Lambda uses plain JSON so CloudWatch
// can index the fields.
func Init(level string, console bool) {
	InitWithWriter(os.Stderr, level, console)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(w io.Writer, level string, console bool) {
	if v := os.Getenv(LevelEnvVar); v != "" {
		level = v
	}
	zerolog.SetGlobalLevel(ParseLevel(level))

	if console {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
