package datastore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

// ScanCacheStore persists scan outcomes and watcher sessions as one JSON
// document per key. Writes replace whole files atomically; a missing or
// unreadable file reads as absent.
type ScanCacheStore struct {
	root        string
	logger      zerolog.Logger
	fileManager *common.FileManager
	paths       *FilePathGenerator
	locks       *KeyMutexManager
}

// NewScanCacheStore creates a store rooted at cfg.RootDir (or the default root)
func NewScanCacheStore(cfg config.CacheConfig, logger zerolog.Logger) *ScanCacheStore {
	root := cfg.ResolvedRootDir()
	return &ScanCacheStore{
		root:        root,
		logger:      logger.With().Str("component", "ScanCacheStore").Logger(),
		fileManager: common.NewFileManager(logger),
		paths:       NewFilePathGenerator(root, logger),
		locks:       NewKeyMutexManager(logger),
	}
}

// Root returns the cache root directory
func (s *ScanCacheStore) Root() string {
	return s.root
}

// Save upserts entry under (mode, repository, identifier). Saving the same
// entry twice produces byte-identical files.
func (s *ScanCacheStore) Save(mode models.ScanMode, repository, identifier string, entry models.CacheEntry) error {
	path, err := s.paths.ScanFilePath(mode, repository, identifier)
	if err != nil {
		return err
	}
	if entry.Mode == "" {
		entry.Mode = mode
	}
	return s.writeJSON(path, entry)
}

// Get returns the entry for a key. Missing, unreadable and corrupt files all
// report absent; the latter two are logged.
func (s *ScanCacheStore) Get(mode models.ScanMode, repository, identifier string) (*models.CacheEntry, bool) {
	path, err := s.paths.ScanFilePath(mode, repository, identifier)
	if err != nil {
		s.logger.Warn().Err(err).Str("repository", repository).Str("identifier", identifier).Msg("Invalid cache key")
		return nil, false
	}

	var entry models.CacheEntry
	if !s.readJSON(path, &entry) {
		return nil, false
	}
	return &entry, true
}

// Clear removes the entry for a key. Removing a missing entry is a no-op.
func (s *ScanCacheStore) Clear(mode models.ScanMode, repository, identifier string) error {
	path, err := s.paths.ScanFilePath(mode, repository, identifier)
	if err != nil {
		return err
	}

	mu := s.locks.GetMutex(path)
	mu.Lock()
	defer mu.Unlock()

	if err := s.fileManager.RemoveFile(path); err != nil {
		return err
	}
	s.logger.Debug().Str("path", path).Msg("Cache entry cleared")
	return nil
}

// LatestCommitScan returns the commit-mode entry of repository whose file was
// modified most recently. Any read failure reports absent.
func (s *ScanCacheStore) LatestCommitScan(repository string) (*models.CacheEntry, bool) {
	files, err := s.entryFiles(models.ScanModeCommit, repository)
	if err != nil {
		s.logger.Warn().Err(err).Str("repository", repository).Msg("Failed to list commit scans")
		return nil, false
	}
	if len(files) == 0 {
		return nil, false
	}

	latest := files[len(files)-1]
	var entry models.CacheEntry
	if !s.readJSON(latest.path, &entry) {
		return nil, false
	}
	return &entry, true
}

// ListScans returns every readable entry of a repository and mode, oldest
// file first. Corrupt files are skipped.
func (s *ScanCacheStore) ListScans(mode models.ScanMode, repository string) ([]models.CacheEntry, error) {
	files, err := s.entryFiles(mode, repository)
	if err != nil {
		return nil, err
	}

	entries := make([]models.CacheEntry, 0, len(files))
	for _, f := range files {
		var entry models.CacheEntry
		if s.readJSON(f.path, &entry) {
			if entry.Mode == "" {
				entry.Mode = mode
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// GetSession loads the persisted state of a watcher session
func (s *ScanCacheStore) GetSession(sessionID string) (*models.SessionState, bool) {
	path, err := s.paths.SessionFilePath(sessionID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Invalid session id")
		return nil, false
	}

	var state models.SessionState
	if !s.readJSON(path, &state) {
		return nil, false
	}
	return &state, true
}

// SaveSession upserts the state of a watcher session
func (s *ScanCacheStore) SaveSession(sessionID string, state models.SessionState) error {
	path, err := s.paths.SessionFilePath(sessionID)
	if err != nil {
		return err
	}
	return s.writeJSON(path, state)
}

func (s *ScanCacheStore) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return common.WrapError(err, "failed to encode cache document")
	}
	data = append(data, '\n')

	mu := s.locks.GetMutex(path)
	mu.Lock()
	defer mu.Unlock()

	if err := s.fileManager.WriteFile(path, data, common.DefaultFileWriteOptions()); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to write cache document")
		return err
	}
	return nil
}

func (s *ScanCacheStore) readJSON(path string, v any) bool {
	data, err := s.fileManager.ReadFile(path, common.FileReadOptions{})
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to read cache document")
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Corrupt cache document ignored")
		return false
	}
	return true
}

type entryFile struct {
	path    string
	modTime int64
}

// entryFiles lists the entry files of a scan directory sorted by
// modification time, ties broken by name. A missing directory is empty.
func (s *ScanCacheStore) entryFiles(mode models.ScanMode, repository string) ([]entryFile, error) {
	dir, err := s.paths.ScanDir(mode, repository)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, common.NewIOError("readdir", dir, err)
	}

	files := make([]entryFile, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, entryExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, common.NewIOError("stat", filepath.Join(dir, name), err)
		}
		files = append(files, entryFile{path: filepath.Join(dir, name), modTime: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime != files[j].modTime {
			return files[i].modTime < files[j].modTime
		}
		return files[i].path < files[j].path
	})
	return files, nil
}
