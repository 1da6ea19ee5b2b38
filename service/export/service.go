package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/brojonat/chainledger/service/fetch"
	"github.com/brojonat/chainledger/service/ledger"
	"github.com/brojonat/chainledger/service/metrics"
	"github.com/brojonat/chainledger/service/prices"
)

// FetcherFactory builds a network-specific transaction fetcher.
type FetcherFactory func(network string) (fetch.Fetcher, error)

// Service orchestrates the full export workflow: fetch transactions across
// wallets, enrich with historical prices, classify, total, and render.
type Service struct {
	newFetcher FetcherFactory
	oracle     prices.Oracle
	outputDir  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewService creates an export service writing files under outputDir.
func NewService(newFetcher FetcherFactory, oracle prices.Oracle, outputDir string, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		newFetcher: newFetcher,
		oracle:     oracle,
		outputDir:  outputDir,
		logger:     logger,
		metrics:    m,
	}
}

// Request describes one export run.
type Request struct {
	WalletAddresses []string
	Network         string // "ethereum" or "bitcoin"
	FromDate        *time.Time
	ToDate          *time.Time
	Format          string // "csv" or "xlsx"
	IncludePrices   bool

	// Overrides maps transaction hashes to manual category names.
	Overrides map[string]string

	// ClassificationAddresses is the full ownership set for transfer
	// detection. When empty, WalletAddresses is used. Supplying all of the
	// user's wallets here lets transfers between any two of them be
	// detected even when only one is being exported.
	ClassificationAddresses []string
}

// Result summarizes a completed export run.
type Result struct {
	Filename         string               `json:"filename"`
	Filepath         string               `json:"filepath"`
	TransactionCount int                  `json:"transaction_count"`
	Totals           ledger.TotalsSummary `json:"totals"`
}

// Generate runs the complete export workflow and writes the report file.
// An empty transaction set still produces a (summary-only) report.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	format := strings.ToLower(req.Format)
	if format != "csv" && format != "xlsx" {
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
	if len(req.WalletAddresses) == 0 {
		return nil, fmt.Errorf("no wallet addresses given")
	}

	s.logger.InfoContext(ctx, "starting export",
		"network", req.Network,
		"wallets", len(req.WalletAddresses),
		"format", format,
	)

	rows, err := s.fetchAll(ctx, req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordExportGenerated(format, "error")
		}
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].BlockTime.Before(rows[j].BlockTime)
	})

	if req.IncludePrices {
		s.enrich(ctx, rows)
	}
	s.classify(rows, req)
	totals := ledger.ComputeTotals(enriched(rows))

	filename := fmt.Sprintf("chainledger_export_%s.%s", time.Now().UTC().Format("20060102_150405"), format)
	path := filepath.Join(s.outputDir, filename)
	if err := s.render(path, format, rows, totals); err != nil {
		if s.metrics != nil {
			s.metrics.RecordExportGenerated(format, "error")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordExportGenerated(format, "success")
		s.metrics.RecordExportDuration(req.Network, time.Since(start).Seconds())
	}
	s.logger.InfoContext(ctx, "export complete",
		"filename", filename,
		"transactions", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		Filename:         filename,
		Filepath:         path,
		TransactionCount: len(rows),
		Totals:           totals,
	}, nil
}

// fetchAll retrieves transactions for every wallet concurrently.
func (s *Service) fetchAll(ctx context.Context, req Request) ([]*Row, error) {
	var mu sync.Mutex
	var all []*Row

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, address := range req.WalletAddresses {
		g.Go(func() error {
			fetcher, err := s.newFetcher(req.Network)
			if err != nil {
				return fmt.Errorf("creating %s fetcher: %w", req.Network, err)
			}
			defer fetcher.Close()

			fetched, err := fetcher.FetchTransactions(gctx, address, req.FromDate, req.ToDate)
			if err != nil {
				return fmt.Errorf("fetching transactions for %s: %w", address, err)
			}

			rows := make([]*Row, len(fetched))
			for i, lr := range fetched {
				rows[i] = &Row{LedgerRow: *lr}
			}
			mu.Lock()
			all = append(all, rows...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// enrich attaches fiat values to each row. The oracle caches per asset and
// day, so enrichment is sequential: parallel lookups would just trip the
// upstream rate limit.
func (s *Service) enrich(ctx context.Context, rows []*Row) {
	for _, r := range rows {
		quote, err := s.oracle.HistoricalPrice(ctx, r.Asset, r.BlockTime)
		if err != nil {
			s.logger.WarnContext(ctx, "price enrichment failed",
				"tx_hash", r.TxHash,
				"asset", r.Asset,
				"error", err,
			)
			continue
		}
		if !quote.USD.IsZero() || !quote.CAD.IsZero() {
			r.USDValue = mulPtr(r.Amount, quote.USD)
			r.CADValue = mulPtr(r.Amount, quote.CAD)
		}

		// Gas is paid in the native token by the sender.
		if r.Direction == ledger.DirectionOut && !r.TxFeeNative.IsZero() {
			native := "BTC"
			if r.Network == "Ethereum" {
				native = "ETH"
			}
			feeQuote, err := s.oracle.HistoricalPrice(ctx, native, r.BlockTime)
			if err != nil {
				s.logger.WarnContext(ctx, "gas fee enrichment failed",
					"tx_hash", r.TxHash,
					"error", err,
				)
				continue
			}
			if !feeQuote.USD.IsZero() || !feeQuote.CAD.IsZero() {
				r.GasFeeUSD = mulPtr(r.TxFeeNative, feeQuote.USD)
				r.GasFeeCAD = mulPtr(r.TxFeeNative, feeQuote.CAD)
			}
		}
	}
}

// classify assigns a category to each row.
func (s *Service) classify(rows []*Row, req Request) {
	addresses := req.ClassificationAddresses
	if len(addresses) == 0 {
		addresses = req.WalletAddresses
	}

	txs := make([]ledger.Transaction, len(rows))
	for i, r := range rows {
		txs[i] = r.Record()
	}
	classified := ledger.ClassifyBatch(txs, addresses, req.Overrides)
	for i, c := range classified {
		rows[i].TransactionType = c.Category
		rows[i].OverrideApplied = c.OverrideApplied
		if s.metrics != nil {
			s.metrics.RecordTransactionClassified(string(c.Category))
		}
	}
}

func (s *Service) render(path, format string, rows []*Row, totals ledger.TotalsSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if format == "xlsx" {
		if err := WriteXLSX(f, rows, totals); err != nil {
			return err
		}
	} else {
		if err := WriteCSV(f, rows, totals); err != nil {
			return err
		}
	}
	return f.Close()
}

func mulPtr(a, b decimal.Decimal) *decimal.Decimal {
	v := a.Mul(b)
	return &v
}
