// ABOUTME: Environment-driven configuration for the deal synchronization service
// ABOUTME: Handles .env loading, environment overrides and XDG default database path
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Config holds everything the service needs to talk to the CRM and the
// local database. Environment variables override defaults:
// - DEALSYNC_BASE_URL
// - DEALSYNC_API_TOKEN
// - DEALSYNC_DB_PATH
// - DEALSYNC_PAGE_LIMIT
// - DEALSYNC_LOG_LEVEL.
type Config struct {
	BaseURL   string
	APIToken  string
	DBPath    string
	PageLimit int
	LogLevel  string
}

// DataDir returns the XDG-compliant data directory.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "dealsync")
}

// DefaultDBPath returns the XDG-compliant default database location.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), "dealsync.db")
}

// Load reads an optional .env file from the working directory, applies
// defaults, then applies environment overrides. The API token is the
// only hard requirement; everything else has a usable default.
func Load() (*Config, error) {
	// Missing .env is fine; env vars alone are a valid setup.
	_ = godotenv.Load()

	cfg := &Config{
		BaseURL:   "https://api.pipedrive.com/v1",
		DBPath:    DefaultDBPath(),
		PageLimit: 100,
		LogLevel:  "info",
	}
	applyEnvOverrides(cfg)

	if cfg.APIToken == "" {
		return nil, fmt.Errorf("DEALSYNC_API_TOKEN is not set")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if baseURL := os.Getenv("DEALSYNC_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if token := os.Getenv("DEALSYNC_API_TOKEN"); token != "" {
		cfg.APIToken = token
	}
	if dbPath := os.Getenv("DEALSYNC_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if limit := os.Getenv("DEALSYNC_PAGE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			cfg.PageLimit = n
		}
	}
	if level := os.Getenv("DEALSYNC_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}
