package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Blockchain provider metrics
	providerCallsTotal    *prometheus.CounterVec
	providerCallDuration  *prometheus.HistogramVec
	providerRateLimitHits *prometheus.CounterVec
	providerRetries       *prometheus.CounterVec

	// Transaction pipeline metrics
	transactionsFetchedTotal    *prometheus.CounterVec
	transactionsClassifiedTotal *prometheus.CounterVec

	// Price oracle metrics
	priceLookupsTotal    *prometheus.CounterVec
	priceLookupDuration  *prometheus.HistogramVec
	priceCacheHitsTotal  *prometheus.CounterVec
	priceCacheMissTotal  *prometheus.CounterVec

	// Export metrics
	exportsGeneratedTotal *prometheus.CounterVec
	exportDuration        *prometheus.HistogramVec

	// Invoice metrics
	invoicesGeneratedTotal *prometheus.CounterVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Blockchain provider metrics
		providerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_provider_calls_total",
				Help: "Total number of blockchain provider API calls by method and status",
			},
			[]string{"network", "method", "status"},
		),
		providerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chain_provider_call_duration_seconds",
				Help:    "Duration of blockchain provider API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"network", "method"},
		),
		providerRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_provider_rate_limit_hits_total",
				Help: "Total number of provider rate limit hits (429 errors)",
			},
			[]string{"network"},
		),
		providerRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_provider_retries_total",
				Help: "Total number of provider retry attempts",
			},
			[]string{"network", "reason"},
		),

		// Transaction pipeline metrics
		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of transactions fetched from blockchain providers",
			},
			[]string{"network"},
		),
		transactionsClassifiedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_classified_total",
				Help: "Total number of transactions classified by category",
			},
			[]string{"category"},
		),

		// Price oracle metrics
		priceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_lookups_total",
				Help: "Total number of price oracle lookups by status",
			},
			[]string{"status"},
		),
		priceLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "price_lookup_duration_seconds",
				Help:    "Duration of price oracle API lookups in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"endpoint"},
		),
		priceCacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_cache_hits_total",
				Help: "Total number of price cache hits",
			},
			[]string{},
		),
		priceCacheMissTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_cache_misses_total",
				Help: "Total number of price cache misses",
			},
			[]string{},
		),

		// Export metrics
		exportsGeneratedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exports_generated_total",
				Help: "Total number of accounting exports generated",
			},
			[]string{"format", "status"},
		),
		exportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "export_duration_seconds",
				Help:    "Duration of full export runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"network"},
		),

		// Invoice metrics
		invoicesGeneratedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoices_generated_total",
				Help: "Total number of PDF invoices generated",
			},
			[]string{"status"},
		),

		// Database metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Blockchain provider metric helpers

// RecordProviderCall records a provider API call with duration.
func (m *Metrics) RecordProviderCall(network, method, status string, duration float64) {
	m.providerCallsTotal.WithLabelValues(network, method, status).Inc()
	m.providerCallDuration.WithLabelValues(network, method).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(network string) {
	m.providerRateLimitHits.WithLabelValues(network).Inc()
}

// RecordProviderRetry records a retry attempt.
func (m *Metrics) RecordProviderRetry(network, reason string) {
	m.providerRetries.WithLabelValues(network, reason).Inc()
}

// Transaction pipeline metric helpers

// RecordTransactionsFetched records transactions fetched from a provider.
func (m *Metrics) RecordTransactionsFetched(network string, count int) {
	m.transactionsFetchedTotal.WithLabelValues(network).Add(float64(count))
}

// RecordTransactionClassified records a classified transaction.
func (m *Metrics) RecordTransactionClassified(category string) {
	m.transactionsClassifiedTotal.WithLabelValues(category).Inc()
}

// Price oracle metric helpers

// RecordPriceLookup records a price oracle API lookup with duration.
func (m *Metrics) RecordPriceLookup(endpoint, status string, duration float64) {
	m.priceLookupsTotal.WithLabelValues(status).Inc()
	m.priceLookupDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordPriceCacheHit records a price cache hit.
func (m *Metrics) RecordPriceCacheHit() {
	m.priceCacheHitsTotal.WithLabelValues().Inc()
}

// RecordPriceCacheMiss records a price cache miss.
func (m *Metrics) RecordPriceCacheMiss() {
	m.priceCacheMissTotal.WithLabelValues().Inc()
}

// Export metric helpers

// RecordExportGenerated records a completed (or failed) export run.
func (m *Metrics) RecordExportGenerated(format, status string) {
	m.exportsGeneratedTotal.WithLabelValues(format, status).Inc()
}

// RecordExportDuration records the duration of a full export run.
func (m *Metrics) RecordExportDuration(network string, duration float64) {
	m.exportDuration.WithLabelValues(network).Observe(duration)
}

// Invoice metric helpers

// RecordInvoiceGenerated records a generated invoice.
func (m *Metrics) RecordInvoiceGenerated(status string) {
	m.invoicesGeneratedTotal.WithLabelValues(status).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
