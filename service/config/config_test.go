package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Setup environment variables
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "https://eth-mainnet.g.alchemy.com/v2", cfg.EthereumRPCURL)
	assert.Equal(t, "https://blockstream.info/api", cfg.BlockstreamAPIURL)
	assert.Equal(t, "https://api.coingecko.com/api/v3", cfg.CoinGeckoAPIURL)
	assert.Equal(t, 2048, cfg.PriceCacheSize)
	assert.Equal(t, 24*time.Hour, cfg.PriceCacheTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.PriceRateLimit)
	assert.Equal(t, "INV", cfg.InvoicePrefix)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_InvalidCacheTTL(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("PRICE_CACHE_TTL", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidCacheSize(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("PRICE_CACHE_SIZE", "lots")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid integer")
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("ALCHEMY_API_KEY", "secret-key")
	os.Setenv("PRICE_CACHE_SIZE", "64")
	os.Setenv("PRICE_CACHE_TTL", "2h")
	os.Setenv("EXPORT_DIR", "/var/lib/chainledger/exports")
	os.Setenv("INVOICE_PREFIX", "CL")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "secret-key", cfg.AlchemyAPIKey)
	assert.Equal(t, 64, cfg.PriceCacheSize)
	assert.Equal(t, 2*time.Hour, cfg.PriceCacheTTL)
	assert.Equal(t, "/var/lib/chainledger/exports", cfg.ExportDir)
	assert.Equal(t, "CL", cfg.InvoicePrefix)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database URL",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "DatabaseURL is required",
		},
		{
			name:    "cache size too small",
			mutate:  func(c *Config) { c.PriceCacheSize = 0 },
			wantErr: "PriceCacheSize must be at least 1",
		},
		{
			name:    "cache TTL too short",
			mutate:  func(c *Config) { c.PriceCacheTTL = time.Second },
			wantErr: "PriceCacheTTL must be at least 1 minute",
		},
		{
			name:    "missing invoice prefix",
			mutate:  func(c *Config) { c.InvoicePrefix = "" },
			wantErr: "InvoicePrefix is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				DatabaseURL:       "postgres://localhost/test",
				EthereumRPCURL:    "https://eth-mainnet.g.alchemy.com/v2",
				BlockstreamAPIURL: "https://blockstream.info/api",
				CoinGeckoAPIURL:   "https://api.coingecko.com/api/v3",
				PriceCacheSize:    2048,
				PriceCacheTTL:     24 * time.Hour,
				ExportDir:         "./data/exports",
				InvoiceDir:        "./data/invoices",
				InvoicePrefix:     "INV",
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// cleanupEnv removes all config environment variables set by tests.
func cleanupEnv() {
	vars := []string{
		"SERVER_ADDR", "LOG_LEVEL", "DATABASE_URL", "NATS_URL",
		"ALCHEMY_API_KEY", "ETHEREUM_RPC_URL", "BLOCKSTREAM_API_URL",
		"COINGECKO_API_URL", "PRICE_CACHE_SIZE", "PRICE_CACHE_TTL",
		"PRICE_RATE_LIMIT", "EXPORT_DIR", "INVOICE_DIR", "INVOICE_PREFIX",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
