package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/chainledger/service/ledger"
	"github.com/brojonat/chainledger/service/metrics"
)

// satoshisPerBTC converts raw satoshi amounts to BTC.
var satoshisPerBTC = decimal.New(1, 8)

// BitcoinFetcher retrieves Bitcoin transactions from the Blockstream
// Esplora API. No API key is required.
type BitcoinFetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBitcoinFetcher creates a fetcher against the given Blockstream base URL.
func NewBitcoinFetcher(baseURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *BitcoinFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BitcoinFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
	}
}

// Close releases resources held by the fetcher.
func (f *BitcoinFetcher) Close() {
	f.httpClient.CloseIdleConnections()
}

type esploraPrevout struct {
	ScriptpubkeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

type esploraVin struct {
	Prevout esploraPrevout `json:"prevout"`
}

type esploraVout struct {
	ScriptpubkeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

type esploraStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
	BlockTime   int64 `json:"block_time"`
}

type esploraTx struct {
	Txid   string        `json:"txid"`
	Fee    int64         `json:"fee"`
	Vin    []esploraVin  `json:"vin"`
	Vout   []esploraVout `json:"vout"`
	Status esploraStatus `json:"status"`
}

// FetchTransactions returns confirmed transactions for the address, one row
// per transaction reflecting the wallet's net flow. The fee is attributed to
// outgoing transactions only, since the sender pays it.
func (f *BitcoinFetcher) FetchTransactions(ctx context.Context, address string, from, to *time.Time) ([]*LedgerRow, error) {
	if err := ValidateAddress("bitcoin", address); err != nil {
		return nil, err
	}

	var rows []*LedgerRow
	lastSeen := ""
	for {
		txs, err := f.fetchPage(ctx, address, lastSeen)
		if err != nil {
			return nil, err
		}
		if len(txs) == 0 {
			break
		}
		for _, tx := range txs {
			if !tx.Status.Confirmed {
				continue
			}
			row := f.toRow(tx, address)
			if row == nil {
				continue
			}
			if !withinRange(row.BlockTime, from, to) {
				continue
			}
			rows = append(rows, row)
		}
		lastSeen = txs[len(txs)-1].Txid
		// Esplora returns at most 25 per page; a short page means we're done.
		if len(txs) < 25 {
			break
		}
	}

	rows = dedupeRows(rows)
	sortRows(rows)

	if f.metrics != nil {
		f.metrics.RecordTransactionsFetched("bitcoin", len(rows))
	}
	f.logger.InfoContext(ctx, "fetched bitcoin transactions",
		"address", address,
		"count", len(rows),
	)
	return rows, nil
}

// toRow nets the wallet's inputs against its outputs for one transaction.
// Positive net means the wallet received funds, negative means it spent.
func (f *BitcoinFetcher) toRow(tx esploraTx, address string) *LedgerRow {
	var spent, received int64
	var counterpartyIn, counterpartyOut string
	for _, vin := range tx.Vin {
		if vin.Prevout.ScriptpubkeyAddress == address {
			spent += vin.Prevout.Value
		} else if counterpartyIn == "" {
			counterpartyIn = vin.Prevout.ScriptpubkeyAddress
		}
	}
	for _, vout := range tx.Vout {
		if vout.ScriptpubkeyAddress == address {
			received += vout.Value
		} else if counterpartyOut == "" {
			counterpartyOut = vout.ScriptpubkeyAddress
		}
	}

	net := received - spent
	if net == 0 {
		return nil // self-spend with exact change, nothing to account for
	}

	row := &LedgerRow{
		TxHash:      tx.Txid,
		BlockNumber: tx.Status.BlockHeight,
		BlockTime:   time.Unix(tx.Status.BlockTime, 0).UTC(),
		Network:     "Bitcoin",
		Asset:       "BTC",
		TxStatus:    "Success",
	}
	if net > 0 {
		row.Direction = ledger.DirectionIn
		row.Category = "Incoming Transfer"
		row.FromAddress = counterpartyIn
		row.ToAddress = address
		row.AmountRaw = fmt.Sprintf("%d", net)
		row.Amount = decimal.New(net, 0).Div(satoshisPerBTC)
	} else {
		// The fee comes out of the wallet's inputs; report the amount net of
		// fee so amount+fee equals the total outflow.
		sent := -net - tx.Fee
		if sent < 0 {
			sent = 0
		}
		row.Direction = ledger.DirectionOut
		row.Category = "Outgoing Transfer"
		row.FromAddress = address
		row.ToAddress = counterpartyOut
		row.AmountRaw = fmt.Sprintf("%d", sent)
		row.Amount = decimal.New(sent, 0).Div(satoshisPerBTC)
		row.TxFeeNative = decimal.New(tx.Fee, 0).Div(satoshisPerBTC)
	}
	return row
}

func (f *BitcoinFetcher) fetchPage(ctx context.Context, address, lastSeen string) ([]esploraTx, error) {
	url := fmt.Sprintf("%s/address/%s/txs", f.baseURL, address)
	if lastSeen != "" {
		url = fmt.Sprintf("%s/address/%s/txs/chain/%s", f.baseURL, address, lastSeen)
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := range maxAttempts {
		start := time.Now()
		txs, err := f.doOnce(ctx, url)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if f.metrics != nil {
			f.metrics.RecordProviderCall("bitcoin", "address_txs", status, duration)
		}

		if err == nil {
			return txs, nil
		}
		lastErr = err

		if strings.Contains(err.Error(), "429") {
			backoff := time.Duration(2<<uint(attempt)) * time.Second
			f.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"address", address,
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			if f.metrics != nil {
				f.metrics.RecordRateLimitHit("bitcoin")
				f.metrics.RecordProviderRetry("bitcoin", "rate_limit")
			}
			time.Sleep(backoff)
			continue
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		f.logger.WarnContext(ctx, "provider call failed, retrying",
			"address", address,
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if f.metrics != nil {
			f.metrics.RecordProviderRetry("bitcoin", "error")
		}
		time.Sleep(backoff)
	}
	return nil, fmt.Errorf("fetching transactions for %s failed after %d attempts: %w", address, maxAttempts, lastErr)
}

func (f *BitcoinFetcher) doOnce(ctx context.Context, url string) ([]esploraTx, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload))
	}

	var txs []esploraTx
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return txs, nil
}
