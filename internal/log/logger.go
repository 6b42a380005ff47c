// Package log wraps a process-wide zerolog logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var Logger zerolog.Logger

func init() {
	Logger = newLogger(zerolog.InfoLevel, FormatConsole, os.Stderr)
	log.Logger = Logger
}

func newLogger(level zerolog.Level, format string, w io.Writer) zerolog.Logger {
	out := w
	if format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Setup replaces the global logger. An empty level means info, an empty
// format means console output.
func Setup(level, format string, w io.Writer) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	switch format {
	case "", FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	if w == nil {
		w = os.Stderr
	}
	Logger = newLogger(lvl, format, w)
	log.Logger = Logger
	return nil
}

// Info logs an info message.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Error logs an error message.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Warn logs a warning message.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Debug logs a debug message.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Fatal logs a fatal message and exits.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// SetDebugMode switches the logger to debug level.
func SetDebugMode() {
	Logger = Logger.Level(zerolog.DebugLevel)
	log.Logger = Logger
}
