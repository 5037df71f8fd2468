package config

import (
	"os"
	"path/filepath"

	"datasync/internal/common"
)

// EnvConfigFile overrides the location of the sync record.
const EnvConfigFile = "DATASYNC_CONFIG"

// GetConfigPath returns the directory holding the sync record.
func GetConfigPath() string {
	return filepath.Dir(GetConfigFile())
}

// GetConfigFile returns the sync record path, honouring DATASYNC_CONFIG.
func GetConfigFile() string {
	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		// Validate the path to prevent directory traversal
		if cleaned, err := common.CleanPath(configFile); err == nil {
			return cleaned
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".datasync", "config.yaml")
}

// Exists reports whether the record file has been written.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
