package config

import (
	"os"
	"path/filepath"
)

// CacheConfig defines where scan and session state is persisted
type CacheConfig struct {
	// RootDir holds scans/ and sessions/. Empty means ~/.vulnzap/client.
	RootDir string `json:"root_dir,omitempty" yaml:"root_dir,omitempty"`
}

// NewDefaultCacheConfig creates default cache configuration
func NewDefaultCacheConfig() CacheConfig {
	return CacheConfig{RootDir: DefaultCacheRoot()}
}

// DefaultCacheRoot returns ~/.vulnzap/client, falling back to the temp dir
// when the home directory cannot be determined
func DefaultCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, DefaultCacheDirName, DefaultCacheClientSubDir)
}

// ResolvedRootDir returns RootDir or the default root when unset
func (cc CacheConfig) ResolvedRootDir() string {
	if cc.RootDir == "" {
		return DefaultCacheRoot()
	}
	return cc.RootDir
}
