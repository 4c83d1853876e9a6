// Package logging builds the zerolog logger used by the tautan command from
// its LoggingConfig: level, console or JSON format, and stdout, stderr or file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ambiyansyah-risyal/tautan"
	"github.com/ambiyansyah-risyal/tautan/internal/config"
)

// Setup creates a logger from cfg. The returned Closer is non-nil only for
// file output and must be closed by the caller.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer, closer, err := openWriter(cfg.Output, cfg.FilePath)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log output: %w", err)
	}

	if cfg.Format != "json" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339, NoColor: closer != nil}
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("version", tautan.Version).
		Logger()

	return logger, closer, nil
}

// ParseLevel converts debug, info, warn or error (any case) to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unsupported log level: %s", level)
	}
}

func openWriter(output, filePath string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, nil, nil
	case "file":
		if filePath == "" {
			return nil, nil, fmt.Errorf("file path is required when output is file")
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
		}
		return f, f, nil
	default:
		return os.Stderr, nil, nil
	}
}
