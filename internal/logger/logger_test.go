package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
)

func TestNew_DefaultLogger(t *testing.T) {
	_, err := New(config.NewDefaultLogConfig())
	require.NoError(t, err)
}

func TestBuilder_JSONConsoleWithSession(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.NewDefaultLogConfig()
	cfg.LogFormat = "json"
	cfg.LogLevel = "debug"

	l, err := NewLoggerBuilder().
		WithConsoleWriter(&buf).
		WithConfig(cfg).
		WithSessionID("sess-1").
		Build()
	require.NoError(t, err)

	l.GetZerolog().Debug().Str("component", "Watcher").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, "debug", entry["level"])
}

func TestBuilder_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "client.log")
	cfg := config.NewDefaultLogConfig()
	cfg.LogFile = logFile
	cfg.LogFormat = "json"

	l, err := NewLoggerBuilder().WithConsoleWriter(&bytes.Buffer{}).WithConfig(cfg).Build()
	require.NoError(t, err)
	assert.True(t, l.Config().EnableFile)

	l.GetZerolog().Info().Msg("to file")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestConvertConfig_Fallbacks(t *testing.T) {
	cc := NewConfigConverter()

	out, err := cc.ConvertConfig(config.LogConfig{LogLevel: "loud", LogFormat: "weird"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Equal(t, zerolog.InfoLevel, out.Level)
	assert.Equal(t, FormatConsole, out.Format)
	assert.Equal(t, config.DefaultMaxLogSizeMB, out.MaxSizeMB)
	assert.Equal(t, config.DefaultMaxLogBackups, out.MaxBackups)
	assert.False(t, out.EnableFile)
}

func TestParseFormat(t *testing.T) {
	p := NewLogFormatParser()
	assert.Equal(t, FormatJSON, p.ParseFormat("JSON"))
	assert.Equal(t, FormatText, p.ParseFormat("text"))
	assert.Equal(t, FormatConsole, p.ParseFormat(""))
	assert.Equal(t, "text", FormatText.String())
}
