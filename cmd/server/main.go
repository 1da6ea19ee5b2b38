package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brojonat/chainledger/service/config"
	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/export"
	"github.com/brojonat/chainledger/service/fetch"
	"github.com/brojonat/chainledger/service/invoice"
	"github.com/brojonat/chainledger/service/metrics"
	"github.com/brojonat/chainledger/service/nats"
	"github.com/brojonat/chainledger/service/prices"
	"github.com/brojonat/chainledger/service/server"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run migrations before opening the pool so the schema is always current
	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool)

	// Register collectors on the default registry; the server's /metrics
	// endpoint serves the default gatherer.
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Price oracle with an in-process cache; CoinGecko's free tier is
	// aggressively rate limited.
	oracle := prices.NewCoinGeckoOracle(prices.OracleConfig{
		BaseURL:   cfg.CoinGeckoAPIURL,
		CacheSize: cfg.PriceCacheSize,
		CacheTTL:  cfg.PriceCacheTTL,
		RateLimit: cfg.PriceRateLimit,
	}, nil, m, logger)

	factory := func(network string) (fetch.Fetcher, error) {
		return fetch.NewFetcher(network, fetch.Options{
			EthereumRPCURL:    cfg.EthereumRPCURL,
			AlchemyAPIKey:     cfg.AlchemyAPIKey,
			BlockstreamAPIURL: cfg.BlockstreamAPIURL,
			Metrics:           m,
			Logger:            logger,
		})
	}
	exporter := export.NewService(factory, oracle, cfg.ExportDir, m, logger)
	invoices := invoice.NewGenerator(cfg.InvoiceDir, m, logger)

	// Event publishing is optional; the service is fully functional without
	// a broker.
	var publisher nats.Publisher
	if cfg.NATSURL != "" {
		p, err := nats.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Info("NATS_URL not set, event publishing disabled")
	}

	httpServer := server.New(cfg.ServerAddr, cfg, store, exporter, invoices, oracle, publisher, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
