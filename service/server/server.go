package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/chainledger/service/config"
	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/export"
	"github.com/brojonat/chainledger/service/invoice"
	"github.com/brojonat/chainledger/service/metrics"
	"github.com/brojonat/chainledger/service/nats"
	"github.com/brojonat/chainledger/service/prices"
)

// Server represents the HTTP server for the ledger service.
type Server struct {
	addr      string
	cfg       *config.Config
	store     *db.Store
	exporter  *export.Service
	invoices  *invoice.Generator
	oracle    prices.Oracle
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The publisher is optional - if nil, no events are emitted.
// The metrics is optional - if nil, the /metrics endpoint is disabled.
func New(addr string, cfg *config.Config, store *db.Store, exporter *export.Service, invoices *invoice.Generator, oracle prices.Oracle, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		store:     store,
		exporter:  exporter,
		invoices:  invoices,
		oracle:    oracle,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Handler builds the full route table. Exposed separately from Start so
// tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Wallet routes
	mux.Handle("POST /api/v1/wallets", handleCreateWallet(s.store, s.logger))
	mux.Handle("GET /api/v1/wallets", handleListWallets(s.store, s.logger))
	mux.Handle("GET /api/v1/wallets/{address}", handleGetWallet(s.store, s.logger))
	mux.Handle("DELETE /api/v1/wallets/{address}", handleDeleteWallet(s.store, s.logger))

	// Classification override routes
	mux.Handle("GET /api/v1/overrides", handleListOverrides(s.store, s.logger))
	mux.Handle("PUT /api/v1/overrides/{tx_hash}", handleSetOverride(s.store, s.logger))
	mux.Handle("GET /api/v1/overrides/{tx_hash}", handleGetOverride(s.store, s.logger))
	mux.Handle("DELETE /api/v1/overrides/{tx_hash}", handleDeleteOverride(s.store, s.logger))

	// Export routes
	mux.Handle("POST /api/v1/exports", handleCreateExport(s.store, s.exporter, s.publisher, s.logger))
	mux.Handle("GET /api/v1/exports", handleListExports(s.store, s.logger))
	mux.Handle("GET /api/v1/exports/{id}", handleGetExport(s.store, s.logger))
	mux.Handle("GET /api/v1/exports/{id}/download", handleDownloadExport(s.store, s.cfg.ExportDir, s.logger))

	// Invoice routes
	mux.Handle("POST /api/v1/invoices", handleCreateInvoice(s.store, s.invoices, s.publisher, s.cfg.InvoicePrefix, s.logger))
	mux.Handle("GET /api/v1/invoices", handleListInvoices(s.store, s.logger))
	mux.Handle("GET /api/v1/invoices/{id}", handleGetInvoice(s.store, s.logger))
	mux.Handle("PUT /api/v1/invoices/{id}/status", handleUpdateInvoiceStatus(s.store, s.publisher, s.logger))
	mux.Handle("DELETE /api/v1/invoices/{id}", handleDeleteInvoice(s.store, s.logger))
	mux.Handle("GET /api/v1/invoices/{id}/pdf", handleDownloadInvoice(s.store, s.cfg.InvoiceDir, s.logger))

	// Sender profile routes
	mux.Handle("GET /api/v1/profile", handleGetProfile(s.store, s.logger))
	mux.Handle("PUT /api/v1/profile", handleUpdateProfile(s.store, s.logger))

	// Price lookup
	mux.Handle("GET /api/v1/prices", handleGetPrice(s.oracle, s.logger))

	// Aggregate stats
	mux.Handle("GET /api/v1/stats", handleGetStats(s.store, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = metrics.HTTPMetricsMiddleware(s.metrics, handler)
	}
	return corsMiddleware(handler)
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // exports fetch from providers synchronously
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
