package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Local cache
	RedisURL string
	// Cloud backend
	APIBaseURL string
	SyncURL    string
	JWTSecret  string
	// Access token minted by the backend's auth flow; empty means the
	// client starts unauthenticated and works local-only.
	AccessToken string
	// On-disk state
	SnapshotsDir string
	// Handle lifecycle
	HandleGrace time.Duration
	// Logging
	LogLevel string
}

func Load() Config {
	return Config{
		RedisURL:     getenv("INKWELL_REDIS_URL", "redis://localhost:6379/0"),
		APIBaseURL:   getenv("INKWELL_API_URL", "http://localhost:8686"),
		SyncURL:      getenv("INKWELL_SYNC_URL", "ws://localhost:8687/sync"),
		JWTSecret:    getenv("INKWELL_JWT_SECRET", "inkwell-dev-secret"),
		AccessToken:  getenv("INKWELL_ACCESS_TOKEN", ""),
		SnapshotsDir: getenv("INKWELL_SNAPSHOTS_DIR", "./data/snapshots"),
		HandleGrace:  time.Duration(getenvInt("INKWELL_HANDLE_GRACE_MS", 500)) * time.Millisecond,
		LogLevel:     getenv("INKWELL_LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
