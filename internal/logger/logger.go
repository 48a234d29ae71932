package logger

import (
	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/config"
)

// Logger represents the main logger with configuration
type Logger struct {
	zerolog zerolog.Logger
	config  LoggerConfig
}

// GetZerolog returns the underlying zerolog instance
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zerolog
}

// Config returns the resolved logger configuration
func (l *Logger) Config() LoggerConfig {
	return l.config
}

// New creates a zerolog logger from the log section of the global config
func New(cfg config.LogConfig) (zerolog.Logger, error) {
	logger, err := NewLoggerBuilder().WithConfig(cfg).Build()
	if err != nil {
		return zerolog.Logger{}, err
	}
	return *logger.GetZerolog(), nil
}

// NewWithSession creates a logger that stamps every entry with the watcher
// session it belongs to
func NewWithSession(cfg config.LogConfig, sessionID string) (zerolog.Logger, error) {
	logger, err := NewLoggerBuilder().
		WithConfig(cfg).
		WithSessionID(sessionID).
		Build()
	if err != nil {
		return zerolog.Logger{}, err
	}
	return *logger.GetZerolog(), nil
}
