// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases (resolved to absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Remote planner (optional). Empty APIKey means no planner is
	// configured and the agent runs on the rule-based fallback only.
	Planner PlannerConfig

	// Analytics defaults
	ServiceLevel        float64 // Safety-stock service level (0,1)
	OverstockMultiplier float64 // Overstock threshold as a multiple of EOQ
	ForecastHorizonDays int
	RetrainSchedule     string // cron spec for nightly model retrains
}

// PlannerConfig holds the OpenAI-compatible planner endpoint settings
type PlannerConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Configured reports whether a remote planner is set up. Absence is a
// normal operating mode, not an error.
func (p PlannerConfig) Configured() bool {
	return p.APIKey != "" && p.BaseURL != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CHAINSIGHT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("CHAINSIGHT_PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Planner: PlannerConfig{
			BaseURL: getEnv("PLANNER_BASE_URL", ""),
			APIKey:  getEnv("PLANNER_API_KEY", ""),
			Model:   getEnv("PLANNER_MODEL", "gpt-4o-mini"),
			Timeout: time.Duration(getEnvAsInt("PLANNER_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		ServiceLevel:        getEnvAsFloat("SERVICE_LEVEL", 0.95),
		OverstockMultiplier: getEnvAsFloat("OVERSTOCK_MULTIPLIER", 1.5),
		ForecastHorizonDays: getEnvAsInt("FORECAST_HORIZON_DAYS", 30),
		RetrainSchedule:     getEnv("RETRAIN_SCHEDULE", "0 0 3 * * *"), // 03:00 daily
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if configuration values are usable
func (c *Config) Validate() error {
	if c.ServiceLevel <= 0 || c.ServiceLevel >= 1 {
		return fmt.Errorf("SERVICE_LEVEL must be in (0,1), got %v", c.ServiceLevel)
	}
	if c.OverstockMultiplier <= 0 {
		return fmt.Errorf("OVERSTOCK_MULTIPLIER must be positive, got %v", c.OverstockMultiplier)
	}
	if c.ForecastHorizonDays <= 0 {
		return fmt.Errorf("FORECAST_HORIZON_DAYS must be positive, got %d", c.ForecastHorizonDays)
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
