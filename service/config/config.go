package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Blockchain provider configuration
	AlchemyAPIKey     string // required only when fetching Ethereum
	EthereumRPCURL    string // base URL; API key is appended per request
	BlockstreamAPIURL string

	// Price oracle configuration
	CoinGeckoAPIURL string
	PriceCacheSize  int
	PriceCacheTTL   time.Duration
	PriceRateLimit  time.Duration // minimum spacing between CoinGecko requests

	// Export and invoice output
	ExportDir     string
	InvoiceDir    string
	InvoicePrefix string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration (optional)
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Blockchain providers
	cfg.AlchemyAPIKey = os.Getenv("ALCHEMY_API_KEY")
	cfg.EthereumRPCURL = getEnvOrDefault("ETHEREUM_RPC_URL", "https://eth-mainnet.g.alchemy.com/v2")
	cfg.BlockstreamAPIURL = getEnvOrDefault("BLOCKSTREAM_API_URL", "https://blockstream.info/api")

	// Price oracle
	cfg.CoinGeckoAPIURL = getEnvOrDefault("COINGECKO_API_URL", "https://api.coingecko.com/api/v3")

	cacheSize, err := parseInt("PRICE_CACHE_SIZE", 2048)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriceCacheSize = cacheSize
	}

	cacheTTL, err := parseDuration("PRICE_CACHE_TTL", "24h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriceCacheTTL = cacheTTL
	}

	rateLimit, err := parseDuration("PRICE_RATE_LIMIT", "1500ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriceRateLimit = rateLimit
	}

	// Output directories
	cfg.ExportDir = getEnvOrDefault("EXPORT_DIR", "./data/exports")
	cfg.InvoiceDir = getEnvOrDefault("INVOICE_DIR", "./data/invoices")
	cfg.InvoicePrefix = getEnvOrDefault("INVOICE_PREFIX", "INV")

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.EthereumRPCURL == "" {
		errs = append(errs, fmt.Errorf("EthereumRPCURL is required"))
	}

	if c.BlockstreamAPIURL == "" {
		errs = append(errs, fmt.Errorf("BlockstreamAPIURL is required"))
	}

	if c.CoinGeckoAPIURL == "" {
		errs = append(errs, fmt.Errorf("CoinGeckoAPIURL is required"))
	}

	if c.PriceCacheSize < 1 {
		errs = append(errs, fmt.Errorf("PriceCacheSize must be at least 1"))
	}

	if c.PriceCacheTTL < time.Minute {
		errs = append(errs, fmt.Errorf("PriceCacheTTL must be at least 1 minute"))
	}

	if c.PriceRateLimit < 0 {
		errs = append(errs, fmt.Errorf("PriceRateLimit cannot be negative"))
	}

	if c.ExportDir == "" {
		errs = append(errs, fmt.Errorf("ExportDir is required"))
	}

	if c.InvoiceDir == "" {
		errs = append(errs, fmt.Errorf("InvoiceDir is required"))
	}

	if c.InvoicePrefix == "" {
		errs = append(errs, fmt.Errorf("InvoicePrefix is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
