package config

import (
	"os"
	"path/filepath"
)

// QuotagatePath returns the root directory for quotagate data.
// It uses $QUOTAGATE_PATH if set, otherwise defaults to ~/.quotagate.
func QuotagatePath() string {
	if v := os.Getenv("QUOTAGATE_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".quotagate")
	}
	return filepath.Join(home, ".quotagate")
}

// ConfigPath returns the path to the quotagate config file.
func ConfigPath() string {
	return filepath.Join(QuotagatePath(), "config.jsonc")
}

// DotenvPath returns the path to the quotagate .env file.
func DotenvPath() string {
	return filepath.Join(QuotagatePath(), ".env")
}
