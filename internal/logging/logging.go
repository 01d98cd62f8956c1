package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/goplus/libstage/internal/env"
)

// Level maps a -v count to a log level.
func Level(verbosity int) zerolog.Level {
	switch verbosity {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Setup configures the global logger based on verbosity. Output goes to
// console and, when it can be opened, to the log file under XDG_STATE_HOME.
func Setup(verbosity int, console io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(Level(verbosity))

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.Kitchen,
	}}

	logFile, err := env.LogFile()
	var fileErr error
	if err == nil {
		var f *os.File
		f, fileErr = openLogFile(logFile)
		if fileErr == nil {
			writers = append(writers, f)
		}
	} else {
		fileErr = err
	}

	logger := zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger

	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", logFile).Msg("Failed to open log file, logging to console only")
	}
	logger.Debug().Int("verbosity", verbosity).Str("logFile", logFile).Msg("Logger initialized")
	return logger
}

// Component returns a logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// Duration logs the start of an operation and returns a function that logs
// its completion.
func Duration(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("Operation started")
	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("Operation completed")
	}
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
