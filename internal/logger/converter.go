package logger

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
)

// LogLevelParser maps config strings onto zerolog levels
type LogLevelParser struct{}

func NewLogLevelParser() *LogLevelParser { return &LogLevelParser{} }

// ParseLevel is case insensitive. Empty means info.
func (LogLevelParser) ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, common.NewValidationError("log_level", s, "invalid log level")
	}
	return level, nil
}

// LogFormatParser maps config strings onto LogFormat
type LogFormatParser struct{}

func NewLogFormatParser() *LogFormatParser { return &LogFormatParser{} }

// ParseFormat falls back to console for anything unknown
func (LogFormatParser) ParseFormat(s string) LogFormat {
	for _, f := range []LogFormat{FormatJSON, FormatText} {
		if strings.EqualFold(s, f.String()) {
			return f
		}
	}
	return FormatConsole
}

// ConfigConverter turns the log section of the config file into a LoggerConfig
type ConfigConverter struct {
	levels  *LogLevelParser
	formats *LogFormatParser
}

func NewConfigConverter() *ConfigConverter {
	return &ConfigConverter{levels: NewLogLevelParser(), formats: NewLogFormatParser()}
}

// ConvertConfig always returns a usable LoggerConfig. An unknown level falls
// back to info and the parse error is returned alongside.
func (cc *ConfigConverter) ConvertConfig(cfg config.LogConfig) (LoggerConfig, error) {
	level, err := cc.levels.ParseLevel(cfg.LogLevel)

	out := DefaultLoggerConfig()
	out.Level = level
	out.Format = cc.formats.ParseFormat(cfg.LogFormat)
	out.FilePath = cfg.LogFile
	out.EnableFile = cfg.LogFile != ""
	out.MaxSizeMB = positiveOr(cfg.MaxLogSizeMB, config.DefaultMaxLogSizeMB)
	out.MaxBackups = positiveOr(cfg.MaxLogBackups, config.DefaultMaxLogBackups)
	return out, err
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
