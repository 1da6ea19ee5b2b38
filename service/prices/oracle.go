package prices

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
	"golang.org/x/time/rate"

	"github.com/brojonat/chainledger/service/metrics"
)

// Quote is a historical price point for one asset on one day.
type Quote struct {
	USD decimal.Decimal `json:"usd"`
	CAD decimal.Decimal `json:"cad"`
}

// Oracle resolves historical fiat prices for crypto assets.
type Oracle interface {
	// HistoricalPrice returns the asset's USD and CAD price on the given
	// date. A zero quote with nil error means the price could not be
	// resolved; callers proceed with unpriced rows rather than failing
	// the whole run.
	HistoricalPrice(ctx context.Context, asset string, date time.Time) (Quote, error)
}

// coinGeckoIDs maps asset symbols to CoinGecko coin identifiers.
var coinGeckoIDs = map[string]string{
	"ETH":   "ethereum",
	"WETH":  "weth",
	"BTC":   "bitcoin",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"DAI":   "dai",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"AAVE":  "aave",
}

// stablecoinID is used as the quote source for assets without a known
// CoinGecko listing: the price is assumed to track the US dollar, and the
// usd-coin quote supplies the matching CAD conversion for the date.
const stablecoinID = "usd-coin"

// CoinGeckoOracle fetches daily historical prices from the CoinGecko API,
// with an LRU+TTL cache and a client-side rate limit to stay under the free
// tier's request budget.
type CoinGeckoOracle struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *lruCache[Quote]
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// OracleConfig controls cache and rate limit behavior.
type OracleConfig struct {
	BaseURL   string
	CacheSize int
	CacheTTL  time.Duration
	RateLimit time.Duration // minimum spacing between API requests
}

// NewCoinGeckoOracle creates an oracle against the given CoinGecko base URL.
func NewCoinGeckoOracle(cfg OracleConfig, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *CoinGeckoOracle {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 2048
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Every(cfg.RateLimit)
	}
	return &CoinGeckoOracle{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		cache:      newLRUCache[Quote](cfg.CacheSize, cfg.CacheTTL),
		logger:     logger,
		metrics:    m,
	}
}

// HistoricalPrice returns the asset's price on the given date. Unresolvable
// prices are logged and returned as a zero quote, never an error: one missing
// price should not sink an export covering hundreds of transactions.
func (o *CoinGeckoOracle) HistoricalPrice(ctx context.Context, asset string, date time.Time) (Quote, error) {
	coinID, ok := coinGeckoIDs[strings.ToUpper(strings.TrimSpace(asset))]
	if !ok {
		// Unlisted tokens are assumed dollar-pegged; quote the stablecoin
		// to pick up the day's CAD conversion.
		coinID = stablecoinID
	}

	key := fmt.Sprintf("%s:%s", coinID, date.UTC().Format("02-01-2006"))
	if quote, hit := o.cache.Get(key); hit {
		if o.metrics != nil {
			o.metrics.RecordPriceCacheHit()
		}
		return quote, nil
	}
	if o.metrics != nil {
		o.metrics.RecordPriceCacheMiss()
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return Quote{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	quote, err := o.fetchHistory(ctx, coinID, date)
	if err != nil {
		o.logger.WarnContext(ctx, "price lookup failed, continuing without price",
			"asset", asset,
			"coin_id", coinID,
			"date", date.UTC().Format("2006-01-02"),
			"error", err,
		)
		return Quote{}, nil
	}

	o.cache.Set(key, quote)
	return quote, nil
}

type historyResponse struct {
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

func (o *CoinGeckoOracle) fetchHistory(ctx context.Context, coinID string, date time.Time) (Quote, error) {
	// CoinGecko's history endpoint wants dd-mm-yyyy.
	url := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false",
		o.baseURL, coinID, date.UTC().Format("02-01-2006"))

	start := time.Now()
	quote, err := o.doOnce(ctx, url)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if o.metrics != nil {
		o.metrics.RecordPriceLookup("coin_history", status, duration)
	}
	return quote, err
}

func (o *CoinGeckoOracle) doOnce(ctx context.Context, url string) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if o.metrics != nil {
			o.metrics.RecordRateLimitHit("coingecko")
		}
		return Quote{}, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Quote{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload))
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("decoding response: %w", err)
	}

	usd, okUSD := body.MarketData.CurrentPrice["usd"]
	cad, okCAD := body.MarketData.CurrentPrice["cad"]
	if !okUSD && !okCAD {
		return Quote{}, fmt.Errorf("no price data for date")
	}
	return Quote{
		USD: decimal.NewFromFloat(usd),
		CAD: decimal.NewFromFloat(cad),
	}, nil
}

// StaticOracle serves quotes from a fixed map, keyed by upper-case asset
// symbol. Missing assets return a zero quote. Intended for tests and the
// offline CLI path.
type StaticOracle struct {
	Quotes map[string]Quote
}

// HistoricalPrice implements Oracle.
func (s *StaticOracle) HistoricalPrice(_ context.Context, asset string, _ time.Time) (Quote, error) {
	return s.Quotes[strings.ToUpper(asset)], nil
}
