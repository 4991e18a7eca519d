package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Log zerolog.Logger

// Initialize sets the global log level and output format, then derives Log
// with the service field every component logger below builds on.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "credential-broker").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("Logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Cache creates a logger for the caching delegate (C1)
func Cache() *zerolog.Logger {
	l := Log.With().Str("component", "cache").Logger()
	return &l
}

// Gateway creates a logger for outbound credential gateway calls
func Gateway() *zerolog.Logger {
	l := Log.With().Str("component", "gateway").Logger()
	return &l
}

// Revocation creates a logger for the revocation service (C7)
func Revocation() *zerolog.Logger {
	l := Log.With().Str("component", "revocation").Logger()
	return &l
}

// Events creates a logger for event ingestion/publication (C8/C9)
func Events() *zerolog.Logger {
	l := Log.With().Str("component", "events").Logger()
	return &l
}

// Security creates a logger for signature/identity verification events
func Security() *zerolog.Logger {
	l := Log.With().Str("component", "security").Logger()
	return &l
}

// Database creates a logger for store (C10) events
func Database() *zerolog.Logger {
	l := Log.With().Str("component", "database").Logger()
	return &l
}

// HTTP creates a logger for inbound request/response logging on the broker's
// own API surface (distinct from Gateway, which logs outbound calls).
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
