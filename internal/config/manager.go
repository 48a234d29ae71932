package config

import (
	"context"
	"crypto/sha256"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
)

// ConfigManager holds the configuration of a long running process. With hot
// reload on, edits to the config file are picked up after a quiet period and
// handed to OnReload callbacks.
type ConfigManager struct {
	mu        sync.RWMutex
	current   *GlobalConfig
	digest    [sha256.Size]byte
	callbacks []func(*GlobalConfig)

	path        string
	logger      zerolog.Logger
	fsw         *fsnotify.Watcher
	hotReload   bool
	reloadDelay time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

// ConfigManagerOptions holds options for creating a ConfigManager
type ConfigManagerOptions struct {
	Logger           zerolog.Logger
	HotReloadEnabled bool
	ReloadDelay      time.Duration
}

func DefaultConfigManagerOptions() ConfigManagerOptions {
	return ConfigManagerOptions{
		Logger:      zerolog.Nop(),
		ReloadDelay: 500 * time.Millisecond,
	}
}

// NewConfigManager resolves configPath through GetConfigPath and loads it
// with environment overrides. An explicit path that does not exist is an
// error; an empty one falls back to defaults.
func NewConfigManager(configPath string, opts ConfigManagerOptions) (*ConfigManager, error) {
	resolved := GetConfigPath(configPath)
	if configPath != "" && resolved == "" {
		return nil, common.NewValidationError("config_file", configPath, "config file does not exist")
	}

	cm := &ConfigManager{
		path:        resolved,
		logger:      opts.Logger.With().Str("component", "ConfigManager").Logger(),
		reloadDelay: opts.ReloadDelay,
		done:        make(chan struct{}),
	}
	if cm.reloadDelay <= 0 {
		cm.reloadDelay = DefaultConfigManagerOptions().ReloadDelay
	}

	cfg, digest, err := cm.read()
	if err != nil {
		return nil, common.WrapError(err, "load configuration")
	}
	cm.current, cm.digest = cfg, digest

	if opts.HotReloadEnabled && resolved != "" {
		if err := cm.watchDir(); err != nil {
			cm.logger.Warn().Err(err).Msg("Hot reload unavailable")
		} else {
			cm.hotReload = true
		}
	}
	return cm, nil
}

// GetConfig returns a deep copy of the current configuration
func (cm *ConfigManager) GetConfig() *GlobalConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return copyConfig(cm.current)
}

// GetConfigPath is empty when running on defaults
func (cm *ConfigManager) GetConfigPath() string {
	return cm.path
}

func (cm *ConfigManager) IsHotReloadEnabled() bool {
	return cm.hotReload
}

// OnReload registers fn to run after every successful reload
func (cm *ConfigManager) OnReload(fn func(*GlobalConfig)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// ReloadConfig rereads the file. On a load or validation failure the
// previous configuration stays active and no callback runs.
func (cm *ConfigManager) ReloadConfig() error {
	cfg, digest, err := cm.read()
	if err != nil {
		return err
	}

	cm.mu.Lock()
	cm.current, cm.digest = cfg, digest
	callbacks := slices.Clone(cm.callbacks)
	cm.mu.Unlock()

	for _, fn := range callbacks {
		fn(copyConfig(cfg))
	}
	return nil
}

// StartHotReload returns immediately; the loop runs until ctx ends or Close
func (cm *ConfigManager) StartHotReload(ctx context.Context) {
	if cm.hotReload {
		go cm.reloadLoop(ctx)
	}
}

func (cm *ConfigManager) Close() error {
	cm.doneOnce.Do(func() { close(cm.done) })
	if cm.fsw == nil {
		return nil
	}
	return cm.fsw.Close()
}

// read builds a validated configuration and the digest of the file it came from
func (cm *ConfigManager) read() (*GlobalConfig, [sha256.Size]byte, error) {
	var digest [sha256.Size]byte
	cfg := NewDefaultGlobalConfig()

	if cm.path != "" {
		raw, err := os.ReadFile(cm.path)
		if err != nil {
			return nil, digest, common.NewIOError("read", cm.path, err)
		}
		digest = sha256.Sum256(raw)
		if cfg, err = LoadGlobalConfig(cm.path, cm.logger); err != nil {
			return nil, digest, err
		}
	}

	ApplyEnvOverrides(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, digest, err
	}
	cm.logger.Debug().Str("path", cm.path).Msg("Configuration loaded")
	return cfg, digest, nil
}

// watchDir watches the parent directory since editors replace files on save
func (cm *ConfigManager) watchDir() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(cm.path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return common.NewIOError("watch", dir, err)
	}
	cm.fsw = fsw
	return nil
}

func (cm *ConfigManager) isConfigWrite(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(cm.path) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

// changedOnDisk reports whether the file content differs from what is loaded
func (cm *ConfigManager) changedOnDisk() bool {
	raw, err := os.ReadFile(cm.path)
	if err != nil {
		return false
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return sha256.Sum256(raw) != cm.digest
}

func (cm *ConfigManager) reloadLoop(ctx context.Context) {
	quiet := time.NewTimer(cm.reloadDelay)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cm.done:
			return
		case ev, ok := <-cm.fsw.Events:
			if !ok {
				return
			}
			if cm.isConfigWrite(ev) {
				quiet.Reset(cm.reloadDelay)
			}
		case err, ok := <-cm.fsw.Errors:
			if !ok {
				return
			}
			cm.logger.Warn().Err(err).Msg("Config watcher error")
		case <-quiet.C:
			if !cm.changedOnDisk() {
				continue
			}
			if err := cm.ReloadConfig(); err != nil {
				cm.logger.Error().Err(err).Msg("Reload rejected, keeping previous configuration")
				continue
			}
			cm.logger.Info().Str("path", cm.path).Msg("Configuration reloaded")
		}
	}
}

func copyConfig(src *GlobalConfig) *GlobalConfig {
	if src == nil {
		return NewDefaultGlobalConfig()
	}
	dst := *src
	dst.HTTPClientConfig.CustomHeaders = maps.Clone(src.HTTPClientConfig.CustomHeaders)
	if dst.HTTPClientConfig.CustomHeaders == nil {
		dst.HTTPClientConfig.CustomHeaders = make(map[string]string)
	}
	dst.RetryConfig.RetryStatusCodes = slices.Clone(src.RetryConfig.RetryStatusCodes)
	dst.WatcherConfig.ExcludedDirs = slices.Clone(src.WatcherConfig.ExcludedDirs)
	dst.WatcherConfig.ExcludedFiles = slices.Clone(src.WatcherConfig.ExcludedFiles)
	dst.WatcherConfig.ExcludedSuffixes = slices.Clone(src.WatcherConfig.ExcludedSuffixes)
	return &dst
}
