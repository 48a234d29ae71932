package config

import "time"

const (
	// Client Defaults
	DefaultBaseURL = "https://engine.vulnzap.com"

	// HTTP Client Defaults
	DefaultHTTPTimeoutSecs        = 30
	DefaultHTTPInsecureSkipVerify = false
	DefaultHTTPEnableHTTP2        = true
	DefaultHTTPUserAgent          = "vulnzap-go-client/1.0"

	// Retry Defaults
	DefaultRetryMaxRetries   = 2
	DefaultRetryBaseDelayMs  = 500
	DefaultRetryMaxDelaySecs = 10
	DefaultRetryEnableJitter = true

	// Cache Defaults
	DefaultCacheDirName      = ".vulnzap"
	DefaultCacheClientSubDir = "client"

	// Log Defaults
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogFile       = ""
	DefaultMaxLogSizeMB  = 100
	DefaultMaxLogBackups = 3

	// Metrics Defaults
	DefaultMetricsNamespace = "vulnzap_client"

	// Watcher Defaults
	DefaultWatcherMaxFileSize = 2 * 1024 * 1024
	DefaultWatcherTimeout     = 5 * time.Minute
	MinWatcherTimeout         = 10 * time.Second
	MaxWatcherTimeout         = 600 * time.Second

	DefaultConfigFileName = "config.yaml"
)

// Environment variables read by ApplyEnvOverrides
const (
	EnvConfigPath     = "VULNZAP_CONFIG_PATH"
	EnvAPIKey         = "VULNZAP_API_KEY"
	EnvBaseURL        = "VULNZAP_BASE_URL"
	EnvUserIdentifier = "VULNZAP_USER_IDENTIFIER"
	EnvCacheDir       = "VULNZAP_CACHE_DIR"
)
