// Package logging configures the process-wide zerolog logger used by every
// component, matching the level/format conventions the daemon exposes on
// its command line (§4.11).
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the global logger setup.
type Options struct {
	// Format is "json" or "text". Anything else falls back to "text".
	Format string
	// Level is a zerolog level name: debug, info, warn, error.
	Level string
	Output io.Writer
}

// Init configures zerolog's global logger and returns it for components that
// want a typed handle instead of the package-level logger.
func Init(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer = out
	if strings.ToLower(opts.Format) != "json" {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	zerolog.DefaultContextLogger = &logger
	return logger
}

// Component returns a child logger tagged with a component name, the
// convention every package in this module uses for its logger field.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
