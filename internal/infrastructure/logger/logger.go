package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. format "json" writes one object
// per line; anything else writes human-readable console output.
func Init(serviceName, level, format string) {
	InitWithWriter(os.Stderr, serviceName, level, format)
}

// InitWithWriter is Init with an explicit destination
func InitWithWriter(w io.Writer, serviceName, level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	var out io.Writer = w
	if strings.ToLower(format) == "json" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Str("service", serviceName).Logger()
}

// ParseLevel maps a config level to zerolog; unknown values are info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
