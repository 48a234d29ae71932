package common

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileReadOptions configures file reading behavior
type FileReadOptions struct {
	MaxSize int64 // Maximum file size to read (0 = no limit)
}

// FileWriteOptions configures file writing behavior
type FileWriteOptions struct {
	CreateDirs  bool        // Whether to create parent directories
	Permissions fs.FileMode // File permissions
}

// DefaultFileReadOptions returns default file reading options
func DefaultFileReadOptions() FileReadOptions {
	return FileReadOptions{
		MaxSize: 10 * 1024 * 1024,
	}
}

// DefaultFileWriteOptions returns default file writing options
func DefaultFileWriteOptions() FileWriteOptions {
	return FileWriteOptions{
		CreateDirs:  true,
		Permissions: 0644,
	}
}

// FileManager provides file operations with standardized error handling and logging
type FileManager struct {
	logger zerolog.Logger
}

// NewFileManager creates a new FileManager instance
func NewFileManager(logger zerolog.Logger) *FileManager {
	return &FileManager{
		logger: logger.With().Str("component", "FileManager").Logger(),
	}
}

// FileExists checks if a file or directory exists
func (fm *FileManager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// IsRegularFile reports whether path exists and is a regular file
func (fm *FileManager) IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// EnsureDirectory creates a directory and its parents if they don't exist.
// An existing directory is not an error.
func (fm *FileManager) EnsureDirectory(path string, perm fs.FileMode) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return NewValidationError("path", path, "exists but is not a directory")
		}
		return nil
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return NewIOError("mkdir", path, err)
	}

	fm.logger.Debug().Str("path", path).Msg("Created directory")
	return nil
}

// ReadFile reads a whole file, refusing files larger than opts.MaxSize
func (fm *FileManager) ReadFile(path string, opts FileReadOptions) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, NewIOError("open", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fm.logger.Error().Err(closeErr).Str("path", path).Msg("Failed to close file")
		}
	}()

	var reader io.Reader = file
	if opts.MaxSize > 0 {
		info, err := file.Stat()
		if err != nil {
			return nil, NewIOError("stat", path, err)
		}
		if info.Size() > opts.MaxSize {
			return nil, NewValidationError("size", info.Size(), "file exceeds maximum readable size")
		}
		reader = io.LimitReader(file, opts.MaxSize)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewIOError("read", path, err)
	}
	return data, nil
}

// WriteFile replaces the file at path with data. The content is written to a
// temporary file in the same directory and renamed into place, so readers see
// either the old or the new content.
func (fm *FileManager) WriteFile(path string, data []byte, opts FileWriteOptions) error {
	dir := filepath.Dir(path)
	if opts.CreateDirs {
		if err := fm.EnsureDirectory(dir, 0755); err != nil {
			return err
		}
	}

	perm := opts.Permissions
	if perm == 0 {
		perm = 0644
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return NewIOError("create", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return NewIOError("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return NewIOError("close", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return NewIOError("chmod", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return NewIOError("rename", path, err)
	}

	fm.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("File written successfully")
	return nil
}

// RemoveFile deletes a file; a missing file is not an error
func (fm *FileManager) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return NewIOError("remove", path, err)
	}
	return nil
}
