package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration.
type Config struct {
	API      APIConfig
	Cache    CacheConfig
	Sync     SyncConfig
	Location LocationConfig
}

// APIConfig contains backend endpoint and credential settings.
type APIConfig struct {
	BaseURL   string // order backend base URL
	StreamURL string // long-lived order stream URL
	Token     string // bearer token issued by the auth collaborator
	CourierID string // override when the token has no courier claim
}

// CacheConfig contains local snapshot cache settings.
type CacheConfig struct {
	Path string // SQLite cache file path
}

// SyncConfig contains the channel timing knobs.
type SyncConfig struct {
	PollInterval     time.Duration // fixed interval between order fetches
	PollInitialDelay time.Duration // delay before the first fetch
	StreamStartDelay time.Duration // delay before the stream dials, avoids a connect storm at startup
	ReadTimeout      time.Duration // stream idle watchdog ceiling
}

// LocationConfig contains location throttle thresholds.
type LocationConfig struct {
	MinInterval       time.Duration
	MinDistanceMeters float64
}

// Load loads configuration from environment variables with sensible
// defaults. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL:   getEnv("API_BASE_URL", ""),
			StreamURL: getEnv("STREAM_URL", ""),
			Token:     getEnv("API_TOKEN", ""),
			CourierID: getEnv("COURIER_ID", ""),
		},
		Cache: CacheConfig{
			Path: getEnv("CACHE_PATH", "rider-cache.db"),
		},
		Sync: SyncConfig{
			PollInterval:     getEnvDuration("POLL_INTERVAL", 10*time.Second),
			PollInitialDelay: getEnvDuration("POLL_INITIAL_DELAY", time.Second),
			StreamStartDelay: getEnvDuration("STREAM_START_DELAY", 2*time.Second),
			ReadTimeout:      getEnvDuration("STREAM_READ_TIMEOUT", 15*time.Second),
		},
		Location: LocationConfig{
			MinInterval:       getEnvDuration("LOCATION_MIN_INTERVAL", 5*time.Second),
			MinDistanceMeters: getEnvFloat("LOCATION_MIN_DISTANCE_M", 10),
		},
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL environment variable is not set")
	}
	if cfg.API.StreamURL == "" {
		cfg.API.StreamURL = cfg.API.BaseURL + "/orders/stream"
	}
	if cfg.API.Token == "" {
		return nil, fmt.Errorf("API_TOKEN environment variable is not set")
	}
	return cfg, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvDuration retrieves an environment variable as a duration with a
// default fallback. Invalid values fall back rather than abort: timing
// knobs are never worth refusing to start over.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvFloat retrieves an environment variable as a float with a default
// fallback.
func getEnvFloat(key string, defaultVal float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// String returns a string representation of the config (the token is masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{API: %s, Stream: %s, Cache: %s, Token: *** (masked) ***}",
		c.API.BaseURL, c.API.StreamURL, c.Cache.Path)
}
