package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from .env files before Load runs,
// so ${VAR} references in a config file can resolve against a developer's
// local .env without exporting anything into their shell.
//
// Search order (first found wins, existing environment variables are
// never overwritten):
//  1. explicit paths, if given
//  2. .env in the current directory
//  3. .env in the config file's directory, if configPath is non-empty
//  4. .env in the home directory
func LoadDotEnv(configPath string, paths ...string) error {
	for _, path := range paths {
		if path != "" {
			loadIfExists(path)
		}
	}

	loadIfExists(".env")

	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			loadIfExists(filepath.Join(filepath.Dir(abs), ".env"))
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		loadIfExists(filepath.Join(home, ".env"))
	}

	return nil
}

func loadIfExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Debug("config: failed to load .env file", "path", path, "error", err)
		return
	}
	slog.Debug("config: loaded environment file", "path", path)
}
