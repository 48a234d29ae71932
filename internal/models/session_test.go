package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionState_Track(t *testing.T) {
	s := NewSessionState("s1", "/work", time.Now())

	assert.True(t, s.Track("src/b.js"))
	assert.True(t, s.Track("src/a.js"))
	assert.False(t, s.Track("src/b.js"))

	assert.Equal(t, []string{"src/a.js", "src/b.js"}, s.TrackedFiles)
	assert.True(t, s.IsTracked("src/a.js"))
	assert.False(t, s.IsTracked("src/c.js"))
}

func TestScanMode_Paths(t *testing.T) {
	assert.Equal(t, "commits", ScanModeCommit.CacheDir())
	assert.Equal(t, "full", ScanModeRepo.CacheDir())
	assert.Equal(t, "commit", ScanModeCommit.StreamSegment())
	assert.Equal(t, "github", ScanModeRepo.StreamSegment())
	assert.False(t, ScanMode("other").IsValid())
}

func TestCacheEntry_Identifier(t *testing.T) {
	commit := CacheEntry{JobID: "j1", Mode: ScanModeCommit, CommitHash: "abc123"}
	repo := CacheEntry{JobID: "j2", Mode: ScanModeRepo}

	assert.Equal(t, "abc123", commit.Identifier())
	assert.Equal(t, "j2", repo.Identifier())
}
