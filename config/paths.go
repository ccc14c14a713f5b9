package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ConfigDirEnv relocates the whole config directory, mainly for tests and
// portable installs.
const ConfigDirEnv = "CREATORAI_CONFIG_DIR"

// GetConfigDir returns the application configuration directory,
// ~/.creatorai unless overridden via CREATORAI_CONFIG_DIR.
func GetConfigDir() string {
	if dir := strings.TrimSpace(os.Getenv(ConfigDirEnv)); dir != "" {
		return ExpandPath(dir)
	}
	return filepath.Join(GetHomeDir(), ".creatorai")
}

// GetSettingsFilePath returns the path to settings.toml
func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

// GetProvidersFilePath returns the path to the provider registry
func GetProvidersFilePath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// GetRecentFilePath returns the path to the recent-projects list
func GetRecentFilePath() string {
	return filepath.Join(GetConfigDir(), "recent.json")
}

// GetHomeDir returns the user's home directory across platforms
func GetHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "/"
	}
	return home
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		path = filepath.Join(GetHomeDir(), path[2:])
	}

	path = os.ExpandEnv(path)

	return filepath.Clean(path)
}

// EnsureDir creates a directory if it doesn't exist (0700 - user-only access)
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
