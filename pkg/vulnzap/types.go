package vulnzap

import (
	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/events"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

// Public names of the types that cross the client surface
type (
	Config                = config.GlobalConfig
	ScanMode              = models.ScanMode
	FileContent           = models.FileContent
	CommitScanRequest     = models.CommitScanRequest
	RepositoryScanRequest = models.RepositoryScanRequest
	ScanResponse          = models.ScanResponse
	JobHandle             = models.JobHandle
	JobResult             = models.JobResult
	CacheEntry            = models.CacheEntry
	IncrementalResults    = models.IncrementalResults
	Event                 = models.ClientEvent
	EventType             = models.ClientEventType
	EventHandler          = events.Handler
)

const (
	ScanModeCommit = models.ScanModeCommit
	ScanModeRepo   = models.ScanModeRepo

	EventUpdate    = models.EventUpdate
	EventCompleted = models.EventCompleted
	EventError     = models.EventError
)

// NewDefaultConfig returns the configuration used when no file is given
func NewDefaultConfig() *Config {
	return config.NewDefaultGlobalConfig()
}

// LoadConfig reads a config file (see config.GetConfigPath for the search
// order) and applies environment overrides
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadGlobalConfig(path, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	config.ApplyEnvOverrides(cfg)
	return cfg, nil
}
