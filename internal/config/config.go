package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	Broker    BrokerConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// BrokerConfig holds the external broker gateway configuration
type BrokerConfig struct {
	GatewayURL    string
	MarketDataURL string
	VaultKeys     string // comma-separated fernet keys, first one encrypts
}

// ReconcileConfig holds reconciliation cycle tuning
type ReconcileConfig struct {
	BaseCurrency     string
	FetchConcurrency int
	FetchTimeout     time.Duration
	SyncSchedule     string // cron expression for the periodic sync of all portfolios
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/holdings_reconciliation.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost",
			},
		},
		Broker: BrokerConfig{
			GatewayURL:    getEnv("BROKER_GATEWAY_URL", "http://localhost:8090"),
			MarketDataURL: getEnv("MARKET_DATA_URL", "http://localhost:8091"),
			VaultKeys:     os.Getenv("TOKEN_VAULT_KEYS"),
		},
		Reconcile: ReconcileConfig{
			BaseCurrency:     getEnv("BASE_CURRENCY", "EUR"),
			FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 4),
			FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
			SyncSchedule:     getEnv("SYNC_SCHEDULE", "0 6 * * *"),
		},
	}

	if config.Broker.VaultKeys == "" {
		return nil, fmt.Errorf("TOKEN_VAULT_KEYS is required")
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
