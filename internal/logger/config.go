package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// LogFormat selects how entries are rendered
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatConsole
	FormatText
)

var formatNames = map[LogFormat]string{
	FormatJSON:    "json",
	FormatConsole: "console",
	FormatText:    "text",
}

func (lf LogFormat) String() string {
	if name, ok := formatNames[lf]; ok {
		return name
	}
	return formatNames[FormatConsole]
}

// LoggerConfig is the resolved logger setup. Console overrides os.Stderr as
// the console destination.
type LoggerConfig struct {
	Level         zerolog.Level
	Format        LogFormat
	EnableConsole bool
	EnableFile    bool
	FilePath      string
	MaxSizeMB     int
	MaxBackups    int
	SessionID     string
	Console       io.Writer
}

// DefaultLoggerConfig logs info and above to the console
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:         zerolog.InfoLevel,
		Format:        FormatConsole,
		EnableConsole: true,
		MaxSizeMB:     100,
		MaxBackups:    3,
	}
}
