// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/algo-dude/wheeler/internal/domain"
	"github.com/algo-dude/wheeler/internal/scheduler"
)

// defaultGatewayPort is where the Client Portal gateway listens out of the box
const defaultGatewayPort = 5000

// Config holds application configuration
type Config struct {
	TWSHost         string // Client Portal gateway host
	TWSPort         int    // Client Portal gateway port (5000 by default)
	ClientID        int
	GatewayScheme   string // http or https
	GatewayInsecure bool   // Skip TLS verification (the gateway ships a self-signed cert)
	AccountID       string // Empty = first account reported by the gateway
	DatabasePath    string // Shared with Wheeler
	Port            int    // HTTP port of this service
	FetchTimeout    time.Duration
	SyncSchedule    string // Cron schedule (seconds field optional); empty disables scheduled sync
	LogLevel        string
	DevMode         bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		TWSHost:         getEnv("IBKR_TWS_HOST", "127.0.0.1"),
		TWSPort:         getEnvAsInt("IBKR_GATEWAY_PORT", getEnvAsInt("IBKR_TWS_PORT", defaultGatewayPort)),
		ClientID:        getEnvAsInt("IBKR_CLIENT_ID", 1),
		GatewayScheme:   strings.ToLower(getEnv("IBKR_GATEWAY_SCHEME", "https")),
		GatewayInsecure: getEnvAsBool("IBKR_GATEWAY_INSECURE", true),
		AccountID:       getEnv("IBKR_ACCOUNT_ID", ""),
		DatabasePath:    getEnv("IBKR_DATABASE_PATH", "/app/data/wheeler.db"),
		Port:            getEnvAsInt("IBKR_SERVICE_PORT", 8081),
		FetchTimeout:    getEnvAsDuration("IBKR_FETCH_TIMEOUT", 30*time.Second),
		SyncSchedule:    getEnv("IBKR_SYNC_SCHEDULE", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
	}

	if cfg.DatabasePath != "" && !strings.HasPrefix(cfg.DatabasePath, "file:") {
		absPath, err := filepath.Abs(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		cfg.DatabasePath = absPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.TWSPort <= 0 || c.TWSPort > 65535 {
		return fmt.Errorf("invalid IBKR_GATEWAY_PORT: %d", c.TWSPort)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid IBKR_SERVICE_PORT: %d", c.Port)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("IBKR_DATABASE_PATH is required")
	}
	if c.GatewayScheme != "http" && c.GatewayScheme != "https" {
		return fmt.Errorf("invalid IBKR_GATEWAY_SCHEME: %q", c.GatewayScheme)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("IBKR_FETCH_TIMEOUT must be positive")
	}
	if c.SyncSchedule != "" {
		if _, err := scheduler.Parser.Parse(c.SyncSchedule); err != nil {
			return fmt.Errorf("invalid IBKR_SYNC_SCHEDULE %q: %w", c.SyncSchedule, err)
		}
	}
	return nil
}

// Connection returns the default broker connection settings
func (c *Config) Connection() domain.ConnectionConfig {
	return domain.ConnectionConfig{
		Host:     c.TWSHost,
		Port:     c.TWSPort,
		ClientID: c.ClientID,
	}
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

// getEnvAsDuration accepts Go durations ("45s") or plain seconds ("45")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
