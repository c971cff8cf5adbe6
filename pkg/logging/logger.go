// Package logging configures the global zerolog logger used across ringer.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // json, pretty
	OutputFile string `json:"output_file"` // file path for logs, empty disables file output
	Console    bool   `json:"console"`     // also log to console
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		OutputFile: "",
		Console:    true,
	}
}

// Setup configures the global logger from the given config.
func Setup(config *Config) error {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return err
	}

	writers, err := collectWriters(config)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = buildLogger(writers)

	log.Info().
		Str("level", config.Level).
		Str("format", config.Format).
		Msg("logger initialized")

	return nil
}

// collectWriters builds the ordered list of io.Writer destinations a config
// asks for: console first, then a log file if one is configured.
func collectWriters(config *Config) ([]io.Writer, error) {
	var writers []io.Writer

	if config.Console {
		writers = append(writers, consoleWriter(config.Format))
	}

	if config.OutputFile != "" {
		fileWriter, err := openFileWriter(config.OutputFile)
		if err != nil {
			return nil, err
		}
		writers = append(writers, fileWriter)
	}

	return writers, nil
}

// consoleWriter picks a pretty, colorized writer for interactive use or a
// bare stdout writer for machine-parsed JSON logs.
func consoleWriter(format string) io.Writer {
	if format == "pretty" {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return os.Stdout
}

// openFileWriter creates the log file's parent directory if needed and
// opens it for appending.
func openFileWriter(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// buildLogger wraps the collected writers in the fan-out needed for zerolog:
// discard when nothing was configured, a direct writer for exactly one
// destination, and a multi-writer beyond that.
func buildLogger(writers []io.Writer) zerolog.Logger {
	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// For returns a contextual logger scoped to a component.
func For(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForCrawl returns a logger scoped to a crawl and one of its workers.
func ForCrawl(crawlID string, workerID int) zerolog.Logger {
	return log.With().
		Str("crawl_id", crawlID).
		Int("worker_id", workerID).
		Logger()
}
