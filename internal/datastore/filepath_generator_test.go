package datastore

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnzap/vulnzap-client/internal/models"
)

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "o/r", want: "o_r"},
		{in: "group/sub/repo", want: "group_sub_repo"},
		{in: `win\path/mixed`, want: "win_path_mixed"},
		{in: "plain", want: "plain"},
		{in: "", wantErr: true},
		{in: ".", wantErr: true},
		{in: "..", wantErr: true},
		{in: "   ", wantErr: true},
	}

	for _, tt := range tests {
		got, err := SanitizePathComponent("repository", tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFilePathGenerator(t *testing.T) {
	fpg := NewFilePathGenerator("/cache", zerolog.Nop())

	p, err := fpg.ScanFilePath(models.ScanModeCommit, "o/r", "abc123")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cache", "scans", "o_r", "commits", "abc123.json"), p)

	p, err = fpg.ScanFilePath(models.ScanModeRepo, "o/r", "job/1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cache", "scans", "o_r", "full", "job_1.json"), p)

	p, err = fpg.SessionFilePath("s1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cache", "sessions", "s1.json"), p)
}

func TestKeyMutexManager(t *testing.T) {
	kmm := NewKeyMutexManager(zerolog.Nop())

	a := kmm.GetMutex("a")
	assert.Same(t, a, kmm.GetMutex("a"))
	assert.NotSame(t, a, kmm.GetMutex("b"))
	assert.Equal(t, 2, kmm.Len())

	kmm.Forget("a")
	assert.Equal(t, 1, kmm.Len())
}
