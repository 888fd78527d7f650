package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnvVar overrides the RefractorIQ home directory.
const HomeEnvVar = "REFRACTORIQ_HOME"

const (
	homeDirName     = ".refractoriq"
	historyFileName = "history.db"
	logsDirName     = "logs"
)

// GetHome returns the RefractorIQ home directory.
// $REFRACTORIQ_HOME wins; otherwise ~/.refractoriq.
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user home: %w", err)
	}
	return filepath.Join(userHome, homeDirName), nil
}

// EnsureHome creates the home directory if needed and returns it.
func EnsureHome() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", home, err)
	}
	return home, nil
}

// GetHistoryPath returns the history database path inside dir.
// An explicit override is returned unchanged.
func GetHistoryPath(dir, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(dir, historyFileName)
}

// GetLogsDir returns the logs directory inside dir.
func GetLogsDir(dir string) string {
	return filepath.Join(dir, logsDirName)
}
