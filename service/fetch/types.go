package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/chainledger/service/ledger"
	"github.com/brojonat/chainledger/service/metrics"
)

// LedgerRow is a single standardized transaction record fetched from a
// blockchain provider, before enrichment and classification.
type LedgerRow struct {
	TxHash      string
	BlockNumber int64
	BlockTime   time.Time // UTC
	FromAddress string
	ToAddress   string
	Direction   ledger.Direction
	Network     string // "Ethereum" or "Bitcoin"
	Asset       string // token symbol (ETH, BTC, USDC, ...)
	AmountRaw   string // raw amount in the smallest unit
	Amount      decimal.Decimal
	TxFeeNative decimal.Decimal // gas/transaction fee in the native token
	TxStatus    string          // "Success" or "Failed"
	Category    string          // provider-level label ("Incoming Transfer", ...)
	Notes       string
}

// Record converts the row to the minimal transaction the classifier needs.
func (r *LedgerRow) Record() ledger.Transaction {
	return ledger.Transaction{
		ID:          r.TxHash,
		Direction:   r.Direction,
		FromAddress: r.FromAddress,
		ToAddress:   r.ToAddress,
	}
}

// Fetcher retrieves transactions for a wallet address within an optional
// date range. Implementations exist per blockchain network.
type Fetcher interface {
	FetchTransactions(ctx context.Context, address string, from, to *time.Time) ([]*LedgerRow, error)
	Close()
}

// NetworkInfo describes a supported blockchain network.
type NetworkInfo struct {
	Name           string
	RequiresAPIKey bool
	APIKeyLabel    string
}

// SupportedNetworks maps network identifiers to their metadata.
var SupportedNetworks = map[string]NetworkInfo{
	"ethereum": {
		Name:           "Ethereum",
		RequiresAPIKey: true,
		APIKeyLabel:    "Alchemy API Key",
	},
	"bitcoin": {
		Name:           "Bitcoin",
		RequiresAPIKey: false,
	},
}

// Options carries the dependencies a fetcher needs. Metrics may be nil.
type Options struct {
	EthereumRPCURL    string
	AlchemyAPIKey     string
	BlockstreamAPIURL string
	HTTPClient        *http.Client
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
}

// NewFetcher returns a Fetcher for the given network identifier.
func NewFetcher(network string, opts Options) (Fetcher, error) {
	switch network {
	case "ethereum":
		if opts.AlchemyAPIKey == "" {
			return nil, fmt.Errorf("ethereum requires an API key")
		}
		return NewEthereumFetcher(opts.EthereumRPCURL, opts.AlchemyAPIKey, opts.HTTPClient, opts.Metrics, opts.Logger), nil
	case "bitcoin":
		return NewBitcoinFetcher(opts.BlockstreamAPIURL, opts.HTTPClient, opts.Metrics, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
}

// sortRows orders rows chronologically. Input order from providers is not
// guaranteed; exports and classification both want a stable timeline.
func sortRows(rows []*LedgerRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].BlockTime.Before(rows[j].BlockTime)
	})
}

// dedupeRows removes duplicate (hash, direction) pairs while preserving
// order. The same on-chain event legitimately appears once per direction,
// but providers can return the same transfer twice when a wallet is both
// queried sides of a filter.
func dedupeRows(rows []*LedgerRow) []*LedgerRow {
	type key struct {
		hash      string
		direction ledger.Direction
	}
	seen := make(map[key]struct{}, len(rows))
	out := rows[:0]
	for _, row := range rows {
		k := key{hash: row.TxHash, direction: row.Direction}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}

// withinRange reports whether t falls inside the optional [from, to] bounds.
func withinRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}
