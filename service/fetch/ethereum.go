package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/chainledger/service/ledger"
	"github.com/brojonat/chainledger/service/metrics"
)

// EthereumFetcher retrieves Ethereum transactions via Alchemy's
// alchemy_getAssetTransfers API. Both external ETH transfers and ERC-20
// token transfers are returned.
type EthereumFetcher struct {
	endpoint   string // full RPC URL including the API key
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// block timestamps are immutable, cache them for the life of a fetch
	blockTimes map[string]time.Time
}

// NewEthereumFetcher creates a fetcher against the given Alchemy base URL.
// The API key is appended to the URL path.
func NewEthereumFetcher(baseURL, apiKey string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *EthereumFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EthereumFetcher{
		endpoint:   strings.TrimRight(baseURL, "/") + "/" + apiKey,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
		blockTimes: make(map[string]time.Time),
	}
}

// Close releases resources held by the fetcher.
func (f *EthereumFetcher) Close() {
	f.httpClient.CloseIdleConnections()
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type assetTransfersParams struct {
	FromBlock   string   `json:"fromBlock"`
	ToBlock     string   `json:"toBlock"`
	FromAddress string   `json:"fromAddress,omitempty"`
	ToAddress   string   `json:"toAddress,omitempty"`
	Category    []string `json:"category"`
	MaxCount    string   `json:"maxCount"`
	PageKey     string   `json:"pageKey,omitempty"`
	Order       string   `json:"order"`
}

type assetTransfer struct {
	Hash     string   `json:"hash"`
	BlockNum string   `json:"blockNum"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Value    *float64 `json:"value"`
	Asset    string   `json:"asset"`
	Category string   `json:"category"`
	RawContract struct {
		Value   string `json:"value"`
		Decimal string `json:"decimal"`
	} `json:"rawContract"`
}

type assetTransfersResult struct {
	Transfers []assetTransfer `json:"transfers"`
	PageKey   string          `json:"pageKey"`
}

// FetchTransactions returns all incoming and outgoing transfers for the
// address, sorted by block time and filtered to the optional date range.
func (f *EthereumFetcher) FetchTransactions(ctx context.Context, address string, from, to *time.Time) ([]*LedgerRow, error) {
	if err := ValidateAddress("ethereum", address); err != nil {
		return nil, err
	}
	address = strings.ToLower(address)

	incoming, err := f.fetchDirection(ctx, address, ledger.DirectionIn)
	if err != nil {
		return nil, fmt.Errorf("fetching incoming transfers: %w", err)
	}
	outgoing, err := f.fetchDirection(ctx, address, ledger.DirectionOut)
	if err != nil {
		return nil, fmt.Errorf("fetching outgoing transfers: %w", err)
	}

	rows := dedupeRows(append(incoming, outgoing...))

	// Resolve block timestamps, then apply the date filter. Timestamps are
	// not included in the transfer payload.
	filtered := rows[:0]
	for _, row := range rows {
		ts, err := f.blockTime(ctx, row.BlockNumber)
		if err != nil {
			f.logger.WarnContext(ctx, "failed to resolve block timestamp, skipping transaction",
				"tx_hash", row.TxHash,
				"block", row.BlockNumber,
				"error", err,
			)
			continue
		}
		row.BlockTime = ts.UTC()
		if !withinRange(row.BlockTime, from, to) {
			continue
		}
		filtered = append(filtered, row)
	}
	sortRows(filtered)

	if f.metrics != nil {
		f.metrics.RecordTransactionsFetched("ethereum", len(filtered))
	}
	f.logger.InfoContext(ctx, "fetched ethereum transactions",
		"address", address,
		"count", len(filtered),
	)
	return filtered, nil
}

func (f *EthereumFetcher) fetchDirection(ctx context.Context, address string, direction ledger.Direction) ([]*LedgerRow, error) {
	var rows []*LedgerRow
	pageKey := ""
	for {
		params := assetTransfersParams{
			FromBlock: "0x0",
			ToBlock:   "latest",
			Category:  []string{"external", "erc20"},
			MaxCount:  "0x3e8", // 1000 per page
			PageKey:   pageKey,
			Order:     "asc",
		}
		if direction == ledger.DirectionIn {
			params.ToAddress = address
		} else {
			params.FromAddress = address
		}

		var result assetTransfersResult
		if err := f.call(ctx, "alchemy_getAssetTransfers", []any{params}, &result); err != nil {
			return nil, err
		}

		for _, tr := range result.Transfers {
			row := &LedgerRow{
				TxHash:      tr.Hash,
				FromAddress: strings.ToLower(tr.From),
				ToAddress:   strings.ToLower(tr.To),
				Direction:   direction,
				Network:     "Ethereum",
				Asset:       tr.Asset,
				AmountRaw:   tr.RawContract.Value,
				TxStatus:    "Success",
			}
			if n, err := strconv.ParseInt(strings.TrimPrefix(tr.BlockNum, "0x"), 16, 64); err == nil {
				row.BlockNumber = n
			}
			if tr.Value != nil {
				row.Amount = decimal.NewFromFloat(*tr.Value)
			}
			if direction == ledger.DirectionIn {
				row.Category = "Incoming Transfer"
			} else {
				row.Category = "Outgoing Transfer"
			}
			rows = append(rows, row)
		}

		if result.PageKey == "" {
			return rows, nil
		}
		pageKey = result.PageKey
	}
}

// blockTime resolves a block number to its timestamp via eth_getBlockByNumber,
// memoizing results since many transfers share a block.
func (f *EthereumFetcher) blockTime(ctx context.Context, blockNumber int64) (time.Time, error) {
	hexNum := "0x" + strconv.FormatInt(blockNumber, 16)
	if ts, ok := f.blockTimes[hexNum]; ok {
		return ts, nil
	}

	var block struct {
		Timestamp string `json:"timestamp"`
	}
	if err := f.call(ctx, "eth_getBlockByNumber", []any{hexNum, false}, &block); err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(strings.TrimPrefix(block.Timestamp, "0x"), 16, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing block timestamp %q: %w", block.Timestamp, err)
	}
	ts := time.Unix(secs, 0).UTC()
	f.blockTimes[hexNum] = ts
	return ts, nil
}

// call issues a JSON-RPC request with retry and exponential backoff.
// Public RPC: 3 attempts max to avoid long delays.
func (f *EthereumFetcher) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshaling rpc request: %w", err)
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := range maxAttempts {
		start := time.Now()
		result, err := f.doOnce(ctx, body)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if f.metrics != nil {
			f.metrics.RecordProviderCall("ethereum", method, status, duration)
		}

		if err == nil {
			if err := json.Unmarshal(result, out); err != nil {
				return fmt.Errorf("decoding %s result: %w", method, err)
			}
			return nil
		}
		lastErr = err

		// Handle rate limiting (429 Too Many Requests) with longer backoff
		if strings.Contains(err.Error(), "429") {
			backoff := time.Duration(2<<uint(attempt)) * time.Second // 2s, 4s, 8s
			f.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"method", method,
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			if f.metrics != nil {
				f.metrics.RecordRateLimitHit("ethereum")
				f.metrics.RecordProviderRetry("ethereum", "rate_limit")
			}
			time.Sleep(backoff)
			continue
		}

		// Exponential backoff for other errors (timeout, network, etc.)
		backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
		f.logger.WarnContext(ctx, "provider call failed, retrying",
			"method", method,
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if f.metrics != nil {
			f.metrics.RecordProviderRetry("ethereum", "error")
		}
		time.Sleep(backoff)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, maxAttempts, lastErr)
}

func (f *EthereumFetcher) doOnce(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
