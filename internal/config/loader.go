package config

import (
	"os"
	"path/filepath"
)

// GetConfigPath determines the configuration file path based on command-line flags,
// environment variables, and default locations.
// Priority:
// 1. --config command-line flag
// 2. VULNZAP_CONFIG_PATH environment variable
// 3. config.yaml in the current working directory
// 4. config.json in the current working directory
// 5. config.yaml in ~/.vulnzap
// It returns "" when nothing is found.
func GetConfigPath(configFilePathFlag string) string {
	if configFilePathFlag != "" {
		if fileExists(configFilePathFlag) {
			return configFilePathFlag
		}
		return ""
	}

	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		if fileExists(envPath) {
			return envPath
		}
	}

	var locations []string
	if cwd, err := os.Getwd(); err == nil {
		locations = append(locations,
			filepath.Join(cwd, "config.yaml"),
			filepath.Join(cwd, "config.json"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		locations = append(locations, filepath.Join(home, DefaultCacheDirName, DefaultConfigFileName))
	}

	for _, path := range locations {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// Helper function to check if a file exists
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
