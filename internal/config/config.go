// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// HomeEnv overrides the data directory
const HomeEnv = "CODEWEAVE_HOME"

// Config holds all application configuration paths
type Config struct {
	HomeDir      string
	DataDir      string
	DatabasePath string
	SettingsPath string
	LogDir       string
	ExportDir    string
}

// Load creates a Config instance with resolved paths
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := os.Getenv(HomeEnv)
	if dataDir == "" {
		dataDir = filepath.Join(home, ".codeweave")
	}
	return loadFrom(home, dataDir)
}

func loadFrom(home, dataDir string) (*Config, error) {
	logDir := filepath.Join(dataDir, "logs")
	exportDir := filepath.Join(dataDir, "exports")

	// Ensure directories exist
	for _, dir := range []string{dataDir, logDir, exportDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return &Config{
		HomeDir:      home,
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, "codeweave.db"),
		SettingsPath: filepath.Join(dataDir, "settings.yaml"),
		LogDir:       logDir,
		ExportDir:    exportDir,
	}, nil
}

// GetExportPath returns the directory a project version is exported to
func (c *Config) GetExportPath(projectID string, version int) string {
	return filepath.Join(c.ExportDir, projectID, "v"+strconv.Itoa(version))
}
