// Package logging builds the process logger. Components derive their own
// child loggers with a `component` field.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a timestamped stderr logger at the given level. Unknown level
// strings fall back to info.
func New(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(parsed).With().Timestamp().Logger()
}
