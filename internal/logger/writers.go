package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// WriterStrategy wraps a destination in a log format
type WriterStrategy interface {
	CreateWriter(output io.Writer) io.Writer
}

// JSONWriterStrategy writes zerolog's JSON lines untouched
type JSONWriterStrategy struct{}

func (JSONWriterStrategy) CreateWriter(output io.Writer) io.Writer { return output }

// ConsoleWriterStrategy writes human readable lines. Text format is this with
// NoColor set.
type ConsoleWriterStrategy struct {
	NoColor bool
}

func (s ConsoleWriterStrategy) CreateWriter(output io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339, NoColor: s.NoColor}
}

// strategyFor picks the writer for a format. Files never get color codes.
func strategyFor(format LogFormat, toFile bool) WriterStrategy {
	switch format {
	case FormatJSON:
		return JSONWriterStrategy{}
	case FormatText:
		return ConsoleWriterStrategy{NoColor: true}
	default:
		return ConsoleWriterStrategy{NoColor: toFile}
	}
}

// WriterFactory builds the console and rotating file writers
type WriterFactory struct{}

func NewWriterFactory() *WriterFactory { return &WriterFactory{} }

// CreateConsoleWriter formats onto out, or os.Stderr when out is nil
func (WriterFactory) CreateConsoleWriter(format LogFormat, out io.Writer) io.Writer {
	if out == nil {
		out = os.Stderr
	}
	return strategyFor(format, false).CreateWriter(out)
}

// CreateFileWriter creates the log directory and a lumberjack rotator
func (WriterFactory) CreateFileWriter(cfg LoggerConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	}
	return strategyFor(cfg.Format, true).CreateWriter(rotator), nil
}
