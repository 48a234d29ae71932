package datastore

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

const (
	scansDir    = "scans"
	sessionsDir = "sessions"
	entryExt    = ".json"
)

var pathSeparatorReplacer = strings.NewReplacer("/", "_", `\`, "_")

// SanitizePathComponent turns a repository name or identifier into a single
// path component by replacing every '/' and '\' with '_'. Components that
// would still resolve outside their parent are rejected.
func SanitizePathComponent(field, value string) (string, error) {
	sanitized := pathSeparatorReplacer.Replace(value)
	switch strings.TrimSpace(sanitized) {
	case "", ".", "..":
		return "", common.NewValidationError(field, value, "must be a non-empty name that is not '.' or '..'")
	}
	return sanitized, nil
}

// FilePathGenerator maps cache keys to files under the cache root
type FilePathGenerator struct {
	logger   zerolog.Logger
	basePath string
}

// NewFilePathGenerator creates a new file path generator
func NewFilePathGenerator(basePath string, logger zerolog.Logger) *FilePathGenerator {
	return &FilePathGenerator{
		logger:   logger.With().Str("component", "FilePathGenerator").Logger(),
		basePath: basePath,
	}
}

// ScanDir returns {root}/scans/{repo}/{commits|full}
func (fpg *FilePathGenerator) ScanDir(mode models.ScanMode, repository string) (string, error) {
	if !mode.IsValid() {
		return "", common.NewValidationError("mode", string(mode), "unknown scan mode")
	}
	repo, err := SanitizePathComponent("repository", repository)
	if err != nil {
		return "", err
	}
	return filepath.Join(fpg.basePath, scansDir, repo, mode.CacheDir()), nil
}

// ScanFilePath returns the file holding the cache entry for a key
func (fpg *FilePathGenerator) ScanFilePath(mode models.ScanMode, repository, identifier string) (string, error) {
	dir, err := fpg.ScanDir(mode, repository)
	if err != nil {
		return "", err
	}
	id, err := SanitizePathComponent("identifier", identifier)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(dir, id+entryExt)
	fpg.logger.Debug().
		Str("mode", string(mode)).
		Str("repository", repository).
		Str("file_path", filePath).
		Msg("Generated scan cache path")
	return filePath, nil
}

// SessionFilePath returns {root}/sessions/{sessionId}.json
func (fpg *FilePathGenerator) SessionFilePath(sessionID string) (string, error) {
	id, err := SanitizePathComponent("session_id", sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(fpg.basePath, sessionsDir, id+entryExt), nil
}
