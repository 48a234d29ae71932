package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnzap/vulnzap-client/internal/config"
)

// testEnv isolates config discovery, the env file and the cache root.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvBaseURL, "")
	t.Chdir(dir)
	return dir
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)
	path := filepath.Join(dir, "vulnzap.yaml")

	require.NoError(t, execute(t, "config", "init", path))

	loaded, err := config.LoadGlobalConfig(path, appLogger)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBaseURL, loaded.ClientConfig.BaseURL)

	assert.Error(t, execute(t, "config", "init", path), "existing file without --force")
}

func TestScanCommit_WaitCachesResult(t *testing.T) {
	dir := testEnv(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scan/commit", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"jobId":"j9","status":"queued"}}`))
	})
	mux.HandleFunc("GET /api/scan/commit/j9/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range []string{`{"type":"connected","jobId":"j9"}`, `{"type":"completed","jobId":"j9"}`} {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			w.(http.Flusher).Flush()
		}
	})
	mux.HandleFunc("GET /api/scan/jobs/j9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobId":"j9","status":"completed","results":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	t.Setenv(config.EnvBaseURL, server.URL)

	src := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(src, []byte("package main"), 0644))
	cacheRoot := filepath.Join(dir, "cache")

	require.NoError(t, execute(t, "--cache-dir", cacheRoot, "scan", "commit",
		"--repo", "acme/api", "--commit", "c0ffee", "--wait", src))

	data, err := os.ReadFile(filepath.Join(cacheRoot, "scans", "acme_api", "commits", "c0ffee.json"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"resolved": true`))

	require.NoError(t, execute(t, "--cache-dir", cacheRoot, "cache", "show", "--mode", "commit", "--repo", "acme/api", "c0ffee"))
	assert.Error(t, execute(t, "--cache-dir", cacheRoot, "cache", "show", "--mode", "commit", "--repo", "acme/api", "missing"))
}

func TestParseMode(t *testing.T) {
	mode, err := parseMode("repo")
	require.NoError(t, err)
	assert.Equal(t, "repo", string(mode))

	_, err = parseMode("full")
	assert.Error(t, err)
}

func TestNewSessionID(t *testing.T) {
	a, b := newSessionID(), newSessionID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a), a)
}
