// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelForVerbosity maps the -v count to a level: 0 warn, 1 info, 2+ debug
func LevelForVerbosity(count int) zerolog.Level {
	switch {
	case count <= 0:
		return zerolog.WarnLevel
	case count == 1:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// Setup installs a console logger on w (stderr when nil) at the level for verbosity
func Setup(w io.Writer, verbosity int) {
	if w == nil {
		w = os.Stderr
	}
	zerolog.SetGlobalLevel(LevelForVerbosity(verbosity))
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		With().
		Timestamp().
		Logger()
}
