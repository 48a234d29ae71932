package models

import (
	"encoding/json"
	"time"
)

// ScanMode discriminates whether a job scans one commit or a whole repository snapshot
type ScanMode string

const (
	ScanModeCommit ScanMode = "commit"
	ScanModeRepo   ScanMode = "repo"
)

// CacheDir returns the directory name used for this mode under a repository
func (m ScanMode) CacheDir() string {
	switch m {
	case ScanModeCommit:
		return "commits"
	case ScanModeRepo:
		return "full"
	default:
		return ""
	}
}

// StreamSegment returns the path segment of the backend's events endpoint
func (m ScanMode) StreamSegment() string {
	switch m {
	case ScanModeCommit:
		return "commit"
	case ScanModeRepo:
		return "github"
	default:
		return ""
	}
}

// IsValid reports whether the mode is one of the known modes
func (m ScanMode) IsValid() bool {
	return m == ScanModeCommit || m == ScanModeRepo
}

// FileContent is a file sent along with a commit scan
type FileContent struct {
	Name    string `json:"name" validate:"required"`
	Content string `json:"content"`
}

// CommitScanRequest asks the backend to scan a single commit
type CommitScanRequest struct {
	CommitHash     string        `json:"commitHash" validate:"required"`
	Repository     string        `json:"repository" validate:"required"`
	Branch         string        `json:"branch,omitempty"`
	Files          []FileContent `json:"files" validate:"dive"`
	UserIdentifier string        `json:"userIdentifier,omitempty"`
}

// RepositoryScanRequest asks the backend to scan a full repository snapshot
type RepositoryScanRequest struct {
	Repository     string `json:"repository" validate:"required"`
	Branch         string `json:"branch,omitempty"`
	UserIdentifier string `json:"userIdentifier,omitempty"`
}

// JobHandle identifies a job accepted by the backend
type JobHandle struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// ScanResponse is the success envelope returned by initiation calls
type ScanResponse struct {
	Success bool      `json:"success"`
	Data    JobHandle `json:"data"`
}

// JobResult is the authoritative snapshot of a job as reported by the backend
type JobResult struct {
	JobID       string          `json:"jobId"`
	CommitHash  string          `json:"commitHash,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
	Progress    float64         `json:"progress,omitempty"`
	Results     json.RawMessage `json:"results,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Status      string          `json:"status"`
}

// CacheEntry is the persisted outcome of a scan, keyed by (mode, repository, identifier)
type CacheEntry struct {
	JobID             string          `json:"jobId"`
	Mode              ScanMode        `json:"mode,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	Status            string          `json:"status"`
	Resolved          bool            `json:"resolved"`
	ResolvedTimestamp *time.Time      `json:"resolvedTimestamp,omitempty"`
	Repository        string          `json:"repository"`
	Branch            string          `json:"branch,omitempty"`
	CommitHash        string          `json:"commitHash,omitempty"`
	Results           json.RawMessage `json:"results,omitempty"`
}

// Identifier returns the cache identifier for the entry: the commit hash in
// commit mode, the job id otherwise
func (e *CacheEntry) Identifier() string {
	if e.Mode == ScanModeCommit && e.CommitHash != "" {
		return e.CommitHash
	}
	return e.JobID
}
