package dispatcher

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds a zerolog logger from the logging configuration.
// A configured Logger takes precedence over the other fields. When Output is
// a file path the file stays open for the life of the process; a Service
// built with the same settings opens its own file and closes it in Close.
func NewLogger(config LoggingConfig) (zerolog.Logger, error) {
	logger, _, err := newLogger(config)
	return logger, err
}

// newLogger is NewLogger that also returns the opened log file, or nil when
// the output is a standard stream or a provided logger.
func newLogger(config LoggingConfig) (zerolog.Logger, io.Closer, error) {
	if config.Logger != nil {
		return *config.Logger, nil, nil
	}

	level, err := parseLevel(config.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var format func(io.Writer) io.Writer
	switch strings.ToLower(strings.TrimSpace(config.Format)) {
	case "", "json":
	case "console", "text":
		format = func(w io.Writer) io.Writer {
			return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		}
	default:
		return zerolog.Nop(), nil, NewValidationErrorWithValue("monitoring.logging.format", "unsupported log format", config.Format)
	}

	output, file, err := openOutput(config.Output)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if format != nil {
		output = format(output)
	}

	var closer io.Closer
	if file != nil {
		closer = file
	}
	return zerolog.New(output).With().Timestamp().Logger().Level(level), closer, nil
}

func parseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return lvl, nil
}

func openOutput(output string) (io.Writer, *os.File, error) {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output %s: %w", output, err)
	}
	return f, f, nil
}
