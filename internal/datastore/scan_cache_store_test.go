package datastore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/datastore"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

func newStore(t *testing.T) (*datastore.ScanCacheStore, string) {
	t.Helper()
	root := t.TempDir()
	return datastore.NewScanCacheStore(config.CacheConfig{RootDir: root}, zerolog.Nop()), root
}

func sampleEntry(jobID, commit string) models.CacheEntry {
	return models.CacheEntry{
		JobID:      jobID,
		Timestamp:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:     "queued",
		Repository: "o/r",
		Branch:     "main",
		CommitHash: commit,
	}
}

func TestScanCacheStore_SaveLayout(t *testing.T) {
	store, root := newStore(t)

	require.NoError(t, store.Save(models.ScanModeCommit, "o/r", "abc123", sampleEntry("j1", "abc123")))

	path := filepath.Join(root, "scans", "o_r", "commits", "abc123.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "j1", onDisk["jobId"])
	assert.Equal(t, false, onDisk["resolved"])
	assert.Equal(t, "queued", onDisk["status"])
}

func TestScanCacheStore_RepoModeLayout(t *testing.T) {
	store, root := newStore(t)

	require.NoError(t, store.Save(models.ScanModeRepo, `a\b/c`, "job-9", sampleEntry("job-9", "")))

	_, err := os.Stat(filepath.Join(root, "scans", "a_b_c", "full", "job-9.json"))
	assert.NoError(t, err)
}

func TestScanCacheStore_SaveIsIdempotent(t *testing.T) {
	store, root := newStore(t)
	entry := sampleEntry("j1", "abc123")
	path := filepath.Join(root, "scans", "o_r", "commits", "abc123.json")

	require.NoError(t, store.Save(models.ScanModeCommit, "o/r", "abc123", entry))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(models.ScanModeCommit, "o/r", "abc123", entry))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScanCacheStore_GetRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	entry := sampleEntry("j1", "abc123")
	entry.Results = json.RawMessage(`{"findings":[]}`)

	require.NoError(t, store.Save(models.ScanModeCommit, "o/r", "abc123", entry))

	got, ok := store.Get(models.ScanModeCommit, "o/r", "abc123")
	require.True(t, ok)
	assert.Equal(t, "j1", got.JobID)
	assert.Equal(t, models.ScanModeCommit, got.Mode)
	assert.JSONEq(t, `{"findings":[]}`, string(got.Results))
	assert.True(t, entry.Timestamp.Equal(got.Timestamp))
}

func TestScanCacheStore_GetAbsentAndCorrupt(t *testing.T) {
	store, root := newStore(t)

	_, ok := store.Get(models.ScanModeCommit, "o/r", "missing")
	assert.False(t, ok)

	dir := filepath.Join(root, "scans", "o_r", "commits")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644))

	_, ok = store.Get(models.ScanModeCommit, "o/r", "bad")
	assert.False(t, ok)
}

func TestScanCacheStore_Clear(t *testing.T) {
	store, _ := newStore(t)

	require.NoError(t, store.Save(models.ScanModeCommit, "o/r", "abc123", sampleEntry("j1", "abc123")))
	require.NoError(t, store.Clear(models.ScanModeCommit, "o/r", "abc123"))

	_, ok := store.Get(models.ScanModeCommit, "o/r", "abc123")
	assert.False(t, ok)

	// Missing target is a no-op
	assert.NoError(t, store.Clear(models.ScanModeCommit, "o/r", "abc123"))
}

func TestScanCacheStore_RejectsTraversal(t *testing.T) {
	store, _ := newStore(t)

	for _, repo := range []string{"", ".", ".."} {
		err := store.Save(models.ScanModeCommit, repo, "abc", sampleEntry("j", "abc"))
		require.Error(t, err, "repo %q", repo)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	}

	err := store.Save(models.ScanModeCommit, "o/r", "..", sampleEntry("j", ".."))
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	err = store.Save(models.ScanMode("weird"), "o/r", "abc", sampleEntry("j", "abc"))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestScanCacheStore_LatestCommitScan(t *testing.T) {
	store, root := newStore(t)

	_, ok := store.LatestCommitScan("o/r")
	assert.False(t, ok)

	require.NoError(t, store.Save(models.ScanModeCommit, "o/r", "old", sampleEntry("j-old", "old")))
	require.NoError(t, store.Save(models.ScanModeCommit, "o/r", "new", sampleEntry("j-new", "new")))
	require.NoError(t, store.Save(models.ScanModeRepo, "o/r", "j-full", sampleEntry("j-full", "")))

	dir := filepath.Join(root, "scans", "o_r", "commits")
	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "new.json"), base, base))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.json"), base.Add(time.Minute), base.Add(time.Minute)))

	latest, ok := store.LatestCommitScan("o/r")
	require.True(t, ok)
	assert.Equal(t, "j-old", latest.JobID)
}

func TestScanCacheStore_Sessions(t *testing.T) {
	store, root := newStore(t)

	_, ok := store.GetSession("s1")
	assert.False(t, ok)

	state := models.NewSessionState("s1", "/work", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	state.Track("a.go")
	require.NoError(t, store.SaveSession("s1", *state))

	_, err := os.Stat(filepath.Join(root, "sessions", "s1.json"))
	require.NoError(t, err)

	got, ok := store.GetSession("s1")
	require.True(t, ok)
	assert.Equal(t, []string{"a.go"}, got.TrackedFiles)
	assert.Equal(t, "/work", got.WatchedPath)
}

func TestScanCacheStore_ConcurrentDistinctKeys(t *testing.T) {
	store, _ := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			assert.NoError(t, store.Save(models.ScanModeCommit, "o/r", id, sampleEntry("j"+id, id)))
		}(i)
	}
	wg.Wait()

	entries, err := store.ListScans(models.ScanModeCommit, "o/r")
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestScanCacheStore_ExportHistory(t *testing.T) {
	store, _ := newStore(t)

	resolvedAt := time.Date(2025, 1, 2, 4, 0, 0, 0, time.UTC)
	done := sampleEntry("j1", "abc123")
	done.Resolved = true
	done.Status = "completed"
	done.ResolvedTimestamp = &resolvedAt
	done.Results = json.RawMessage(`{"n":1}`)

	require.NoError(t, store.Save(models.ScanModeCommit, "o/r", "abc123", done))
	require.NoError(t, store.Save(models.ScanModeRepo, "o/r", "j2", sampleEntry("j2", "")))

	var buf bytes.Buffer
	n, err := store.ExportHistory(context.Background(), "o/r", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := datastore.ReadHistory(context.Background(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "j1", records[0].JobID)
	assert.Equal(t, "commit", records[0].Mode)
	assert.True(t, records[0].Resolved)
	require.NotNil(t, records[0].ResolvedTimestamp)
	assert.Equal(t, resolvedAt.UnixMilli(), *records[0].ResolvedTimestamp)
	require.NotNil(t, records[0].ResultsJSON)
	assert.Equal(t, `{"n":1}`, *records[0].ResultsJSON)

	assert.Equal(t, "j2", records[1].JobID)
	assert.Equal(t, "repo", records[1].Mode)
	assert.Nil(t, records[1].CommitHash)
}

func TestScanCacheStore_ExportHistoryCancelled(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ExportHistory(ctx, "o/r", &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
