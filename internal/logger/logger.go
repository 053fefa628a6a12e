// Package logger builds the zerolog loggers used across scriptbox.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`    // debug, info, warn, error
	Format string `json:"format" mapstructure:"format" yaml:"format"` // console, json
	File   string `json:"file" mapstructure:"file" yaml:"file"`       // log file path, empty means none
}

var (
	globalLogger = zerolog.Nop()
	logFile      *os.File
	mu           sync.RWMutex
)

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to out, plus the log file when configured.
// The returned closer releases the file.
func New(config LogConfig, out io.Writer) (zerolog.Logger, io.Closer, error) {
	var writers []io.Writer

	if strings.ToLower(config.Format) == "json" {
		writers = append(writers, out)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		})
	}

	var closer io.Closer = nopCloser{}
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file %s: %w", config.File, err)
		}
		writers = append(writers, f)
		closer = f
	}

	var output io.Writer = writers[0]
	if len(writers) > 1 {
		output = zerolog.MultiLevelWriter(writers...)
	}

	l := zerolog.New(output).Level(parseLevel(config.Level)).With().Timestamp().Logger()
	return l, closer, nil
}

// Init replaces the global logger. Output goes to stderr.
func Init(config LogConfig) error {
	l, closer, err := New(config, os.Stderr)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	if f, ok := closer.(*os.File); ok {
		logFile = f
	}
	globalLogger = l
	return nil
}

// Get returns the global logger. It discards everything until Init is
// called.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Close closes the log file if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
