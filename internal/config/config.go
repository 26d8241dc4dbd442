// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for all databases (always absolute)
	StrategiesDir   string // Directory containing .clj strategy files
	DefaultStrategy string // Strategy file used when a request names none
	LogLevel        string
	Port            int
	DevMode         bool
	DebugTraces     bool   // Enable debug/filter trace accumulation during evaluation
	LookbackDays    int    // Default lookback window for group return backfill
	BackfillCron    string // Cron spec for the scheduled backfill refresh ("" disables)
	S3Bucket        string // Optional bucket for strategy file sync ("" disables)
	S3Prefix        string // Key prefix within the strategy bucket
	AWSRegion       string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic:
	// ALCHEMISER_DATA_DIR, else ./data, always resolved to an absolute path.
	dataDir := getEnv("ALCHEMISER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	strategiesDir := getEnv("ALCHEMISER_STRATEGIES_DIR", "")
	if strategiesDir == "" {
		strategiesDir = "strategies"
	}
	absStrategiesDir, err := filepath.Abs(strategiesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve strategies directory path: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		StrategiesDir:   absStrategiesDir,
		DefaultStrategy: getEnv("ALCHEMISER_DEFAULT_STRATEGY", "Nuclear.clj"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnvAsInt("ALCHEMISER_PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		DebugTraces:     getEnvAsBool("ALCHEMISER_DEBUG_TRACES", false),
		LookbackDays:    getEnvAsInt("ALCHEMISER_LOOKBACK_DAYS", 60),
		BackfillCron:    getEnv("ALCHEMISER_BACKFILL_CRON", ""),
		S3Bucket:        getEnv("ALCHEMISER_S3_BUCKET", ""),
		S3Prefix:        getEnv("ALCHEMISER_S3_PREFIX", "strategies/"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback days must be positive, got %d", c.LookbackDays)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
