package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/vulnzap/vulnzap-client/internal/common"
)

type GlobalConfig struct {
	ClientConfig     ClientConfig     `json:"client_config,omitempty" yaml:"client_config,omitempty"`
	HTTPClientConfig HTTPClientConfig `json:"http_client_config,omitempty" yaml:"http_client_config,omitempty"`
	RetryConfig      RetryConfig      `json:"retry_config,omitempty" yaml:"retry_config,omitempty"`
	CacheConfig      CacheConfig      `json:"cache_config,omitempty" yaml:"cache_config,omitempty"`
	WatcherConfig    WatcherConfig    `json:"watcher_config,omitempty" yaml:"watcher_config,omitempty"`
	LogConfig        LogConfig        `json:"log_config,omitempty" yaml:"log_config,omitempty"`
	MetricsConfig    MetricsConfig    `json:"metrics_config,omitempty" yaml:"metrics_config,omitempty"`
}

func NewDefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		ClientConfig:     NewDefaultClientConfig(),
		HTTPClientConfig: NewDefaultHTTPClientConfig(),
		RetryConfig:      NewDefaultRetryConfig(),
		CacheConfig:      NewDefaultCacheConfig(),
		WatcherConfig:    NewDefaultWatcherConfig(),
		LogConfig:        NewDefaultLogConfig(),
		MetricsConfig:    NewDefaultMetricsConfig(),
	}
}

// ClientConfig identifies the backend and the caller
type ClientConfig struct {
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"required,url"`
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	UserIdentifier string `json:"user_identifier,omitempty" yaml:"user_identifier,omitempty"`
}

// NewDefaultClientConfig creates default client configuration
func NewDefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: DefaultBaseURL,
	}
}

// HTTPClientConfig defines transport settings used to reach the backend
type HTTPClientConfig struct {
	TimeoutSecs        int               `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty" validate:"omitempty,min=1"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	EnableHTTP2        bool              `json:"enable_http2" yaml:"enable_http2"`
	Proxy              string            `json:"proxy,omitempty" yaml:"proxy,omitempty" validate:"omitempty,url"`
	UserAgent          string            `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	CustomHeaders      map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
}

// NewDefaultHTTPClientConfig creates default HTTP client configuration
func NewDefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		TimeoutSecs:        DefaultHTTPTimeoutSecs,
		InsecureSkipVerify: DefaultHTTPInsecureSkipVerify,
		EnableHTTP2:        DefaultHTTPEnableHTTP2,
		UserAgent:          DefaultHTTPUserAgent,
		CustomHeaders:      make(map[string]string),
	}
}

// Timeout returns the request timeout
func (hc HTTPClientConfig) Timeout() time.Duration {
	return time.Duration(hc.TimeoutSecs) * time.Second
}

// MetricsConfig controls the prometheus collectors
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Namespace  string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty" validate:"omitempty,hostname_port"`
}

// NewDefaultMetricsConfig creates default metrics configuration
func NewDefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: DefaultMetricsNamespace,
	}
}

// LoadGlobalConfig loads the configuration from a file or default locations.
// It determines the config file path using GetConfigPath, supports both JSON and YAML formats.
// YAML is preferred if the file extension is .yaml or .yml.
func LoadGlobalConfig(providedPath string, logger zerolog.Logger) (*GlobalConfig, error) {
	cfg := NewDefaultGlobalConfig()

	filePath := GetConfigPath(providedPath)
	if filePath == "" {
		if providedPath != "" {
			return nil, common.NewValidationError("config_file", providedPath, "config file does not exist")
		}
		logger.Debug().Msg("No config file found, using defaults")
		return cfg, nil
	}

	fileManager := common.NewFileManager(logger)
	if !fileManager.IsRegularFile(filePath) {
		return nil, common.NewValidationError("config_file", filePath, "config file does not exist")
	}

	data, err := fileManager.ReadFile(filePath, common.FileReadOptions{MaxSize: 1024 * 1024})
	if err != nil {
		return nil, common.WrapError(err, "failed to load config file content")
	}

	if err := parseConfigContent(data, filePath, cfg); err != nil {
		return nil, common.WrapError(err, "failed to parse config content")
	}

	logger.Debug().Str("path", filePath).Msg("Configuration file loaded")
	return cfg, nil
}

// SaveGlobalConfig writes cfg to path, as YAML or JSON depending on the extension
func SaveGlobalConfig(cfg *GlobalConfig, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAMLFile(filepath.Ext(path)) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return common.WrapError(err, "failed to marshal configuration")
	}

	fm := common.NewFileManager(zerolog.Nop())
	opts := common.DefaultFileWriteOptions()
	opts.Permissions = 0600
	return fm.WriteFile(path, data, opts)
}

// ApplyEnvOverrides overlays values from the environment onto cfg
func ApplyEnvOverrides(cfg *GlobalConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		cfg.ClientConfig.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		cfg.ClientConfig.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUserIdentifier)); v != "" {
		cfg.ClientConfig.UserIdentifier = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheDir)); v != "" {
		cfg.CacheConfig.RootDir = v
	}
}

// parseConfigContent parses the config content based on file extension
func parseConfigContent(data []byte, filePath string, cfg *GlobalConfig) error {
	ext := filepath.Ext(filePath)
	if isYAMLFile(ext) {
		return parseYAMLConfig(data, filePath, cfg)
	}
	return parseJSONConfig(data, filePath, cfg)
}

// isYAMLFile checks if the file extension indicates a YAML file
func isYAMLFile(ext string) bool {
	return ext == ".yaml" || ext == ".yml"
}

// parseYAMLConfig parses YAML configuration
func parseYAMLConfig(data []byte, filePath string, cfg *GlobalConfig) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return common.NewError("failed to unmarshal YAML from '%s': %w", filePath, err)
	}
	return nil
}

// parseJSONConfig parses JSON configuration
func parseJSONConfig(data []byte, filePath string, cfg *GlobalConfig) error {
	if err := json.Unmarshal(data, cfg); err != nil {
		return common.NewError("failed to unmarshal JSON from '%s': %w", filePath, err)
	}
	return nil
}
