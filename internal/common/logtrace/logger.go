// Package logtrace provides logging setup for the planner service.
// It configures zerolog for structured logging; loggers flow through
// context via zerolog's Ctx/WithContext helpers.
package logtrace

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global logger with Unix timestamp format,
// writing to stderr.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// InitTestLogger silences the global logger. Tests call this to keep
// output readable; failures are reported through the test framework.
func InitTestLogger() {
	log.Logger = zerolog.New(io.Discard)
}
