package logger

import (
	"io"
	stdlog "log"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
)

// LoggerBuilder assembles a Logger from the config file's log section plus
// per-process overrides (session id, console destination)
type LoggerBuilder struct {
	cfg     LoggerConfig
	writers *WriterFactory
}

func NewLoggerBuilder() *LoggerBuilder {
	return &LoggerBuilder{cfg: DefaultLoggerConfig(), writers: NewWriterFactory()}
}

// WithConfig takes level, format and file settings from cfg. An unknown
// level silently becomes info; config validation reports it earlier.
func (lb *LoggerBuilder) WithConfig(cfg config.LogConfig) *LoggerBuilder {
	resolved, _ := NewConfigConverter().ConvertConfig(cfg)
	resolved.SessionID, resolved.Console = lb.cfg.SessionID, lb.cfg.Console
	lb.cfg = resolved
	return lb
}

// WithSessionID tags every entry with session_id
func (lb *LoggerBuilder) WithSessionID(id string) *LoggerBuilder {
	lb.cfg.SessionID = id
	return lb
}

// WithConsoleWriter replaces os.Stderr as the console destination
func (lb *LoggerBuilder) WithConsoleWriter(w io.Writer) *LoggerBuilder {
	lb.cfg.Console = w
	return lb
}

func (lb *LoggerBuilder) Build() (*Logger, error) {
	outputs, err := lb.outputs()
	if err != nil {
		return nil, err
	}

	zctx := zerolog.New(zerolog.MultiLevelWriter(outputs...)).Level(lb.cfg.Level).With().Timestamp()
	if lb.cfg.SessionID != "" {
		zctx = zctx.Str("session_id", lb.cfg.SessionID)
	}
	zl := zctx.Logger()

	// Stray stdlib log output ends up in the same sinks
	stdlog.SetFlags(0)
	stdlog.SetOutput(zl)

	return &Logger{zerolog: zl, config: lb.cfg}, nil
}

func (lb *LoggerBuilder) outputs() ([]io.Writer, error) {
	if lb.cfg.MaxSizeMB <= 0 {
		return nil, common.NewValidationError("max_size_mb", lb.cfg.MaxSizeMB, "must be positive")
	}

	var out []io.Writer
	if lb.cfg.EnableConsole {
		out = append(out, lb.writers.CreateConsoleWriter(lb.cfg.Format, lb.cfg.Console))
	}
	if lb.cfg.EnableFile {
		if lb.cfg.FilePath == "" {
			return nil, common.NewValidationError("file_path", "", "required when file logging is enabled")
		}
		fw, err := lb.writers.CreateFileWriter(lb.cfg)
		if err != nil {
			return nil, common.NewIOError("open_log", lb.cfg.FilePath, err)
		}
		out = append(out, fw)
	}
	if len(out) == 0 {
		return nil, common.NewError("no log outputs configured")
	}
	return out, nil
}
