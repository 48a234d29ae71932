package config

import "time"

// WatcherConfig defines configuration for incremental watch sessions
type WatcherConfig struct {
	DefaultTimeoutSecs int      `json:"default_timeout_secs,omitempty" yaml:"default_timeout_secs,omitempty" validate:"omitempty,min=10,max=600"`
	MaxFileSizeBytes   int64    `json:"max_file_size_bytes,omitempty" yaml:"max_file_size_bytes,omitempty" validate:"omitempty,min=1"`
	ExcludedDirs       []string `json:"excluded_dirs,omitempty" yaml:"excluded_dirs,omitempty" validate:"dive,required"`
	ExcludedFiles      []string `json:"excluded_files,omitempty" yaml:"excluded_files,omitempty" validate:"dive,required"`
	ExcludedSuffixes   []string `json:"excluded_suffixes,omitempty" yaml:"excluded_suffixes,omitempty" validate:"dive,required"`
}

// NewDefaultWatcherConfig creates default watcher configuration
func NewDefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DefaultTimeoutSecs: int(DefaultWatcherTimeout / time.Second),
		MaxFileSizeBytes:   DefaultWatcherMaxFileSize,
		// Version control and dependency directories
		ExcludedDirs: []string{".git", ".svn", ".hg", "node_modules", "bower_components", "vendor"},
		// OS metadata and lock files
		ExcludedFiles: []string{
			".DS_Store", "Thumbs.db", "desktop.ini",
			"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "Cargo.lock", "go.sum", "composer.lock", "Gemfile.lock",
		},
		ExcludedSuffixes: []string{".md", ".lock"},
	}
}

// DefaultTimeout returns the configured default idle timeout
func (wc WatcherConfig) DefaultTimeout() time.Duration {
	if wc.DefaultTimeoutSecs <= 0 {
		return DefaultWatcherTimeout
	}
	return time.Duration(wc.DefaultTimeoutSecs) * time.Second
}
