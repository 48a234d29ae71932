package watcher

import (
	"path/filepath"
	"strings"

	"github.com/vulnzap/vulnzap-client/internal/config"
)

// Filter decides which paths of a watched tree are never scanned
type Filter struct {
	dirs     map[string]struct{}
	files    map[string]struct{}
	suffixes []string
}

// NewFilter builds a filter from the watcher configuration
func NewFilter(cfg config.WatcherConfig) *Filter {
	f := &Filter{
		dirs:     make(map[string]struct{}, len(cfg.ExcludedDirs)),
		files:    make(map[string]struct{}, len(cfg.ExcludedFiles)),
		suffixes: append([]string(nil), cfg.ExcludedSuffixes...),
	}
	for _, d := range cfg.ExcludedDirs {
		f.dirs[d] = struct{}{}
	}
	for _, name := range cfg.ExcludedFiles {
		f.files[name] = struct{}{}
	}
	return f
}

// ExcludedDir reports whether a directory with this base name is skipped entirely
func (f *Filter) ExcludedDir(name string) bool {
	_, ok := f.dirs[name]
	return ok
}

// Excluded reports whether relPath, relative to the watched root, is ignored
func (f *Filter) Excluded(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	segments := strings.Split(relPath, "/")
	for _, seg := range segments[:len(segments)-1] {
		if f.ExcludedDir(seg) {
			return true
		}
	}

	base := segments[len(segments)-1]
	if f.ExcludedDir(base) {
		return true
	}
	if _, ok := f.files[base]; ok {
		return true
	}
	for _, suffix := range f.suffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
