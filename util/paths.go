package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	AppConfigDir = ".config/xlog"
)

// GetConfigDir returns ~/.config/xlog/ and creates it if it doesn't exist.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, AppConfigDir)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// ResolveFilePath resolves a file path with the following priority:
// 1. Local working directory (e.g., ./config.yaml)
// 2. User config directory (e.g., ~/.config/xlog/config.yaml)
// 3. Returns the user config directory path if neither exists (for creation)
func ResolveFilePath(filename string) string {
	if _, err := os.Stat(filename); err == nil {
		return filename
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return filename
	}

	return filepath.Join(configDir, filename)
}

// ResolveDSN maps a relative sqlite file name onto ResolveFilePath. Other DSNs pass through.
func ResolveDSN(driver, dsn string) string {
	if driver != "sqlite" || dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	if filepath.IsAbs(dsn) || filepath.Dir(dsn) != "." {
		return dsn
	}
	return ResolveFilePath(dsn)
}
