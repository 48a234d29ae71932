package models

import (
	"encoding/json"
	"sort"
	"time"
)

// ChangeType classifies a file change inside a watch session
type ChangeType string

const (
	ChangeTypeNew      ChangeType = "new"
	ChangeTypeModified ChangeType = "modified"
)

// SessionState is the persisted bookkeeping of a watch session
type SessionState struct {
	SessionID    string    `json:"sessionId"`
	WatchedPath  string    `json:"watchedPath"`
	CreatedAt    time.Time `json:"createdAt"`
	TrackedFiles []string  `json:"trackedFiles"`
}

// NewSessionState creates an empty session state
func NewSessionState(sessionID, watchedPath string, createdAt time.Time) *SessionState {
	return &SessionState{
		SessionID:    sessionID,
		WatchedPath:  watchedPath,
		CreatedAt:    createdAt,
		TrackedFiles: []string{},
	}
}

// IsTracked reports whether relPath was already recorded for the session
func (s *SessionState) IsTracked(relPath string) bool {
	for _, f := range s.TrackedFiles {
		if f == relPath {
			return true
		}
	}
	return false
}

// Track records relPath, keeping TrackedFiles sorted and free of duplicates.
// It returns false when the path was already tracked.
func (s *SessionState) Track(relPath string) bool {
	i := sort.SearchStrings(s.TrackedFiles, relPath)
	if i < len(s.TrackedFiles) && s.TrackedFiles[i] == relPath {
		return false
	}
	s.TrackedFiles = append(s.TrackedFiles, "")
	copy(s.TrackedFiles[i+1:], s.TrackedFiles[i:])
	s.TrackedFiles[i] = relPath
	return true
}

// IncrementalScanRequest forwards one changed file of a session to the backend
type IncrementalScanRequest struct {
	SessionID  string     `json:"sessionId" validate:"required"`
	FilePath   string     `json:"filePath" validate:"required"`
	Content    string     `json:"content"`
	ChangeType ChangeType `json:"changeType"`
	Changed    bool       `json:"changed"`
}

// IncrementalResults is the backend's view of a session's findings
type IncrementalResults struct {
	SessionID string          `json:"sessionId"`
	Status    string          `json:"status,omitempty"`
	Results   json.RawMessage `json:"results,omitempty"`
	Raw       json.RawMessage `json:"-"`
}
