// Package client is the HTTP client for the chainledger service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/ledger"
)

// Client is the HTTP client for the chainledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute} // exports run synchronously
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// RegisterWallet tells the server to track a wallet.
func (c *Client) RegisterWallet(ctx context.Context, address, network, name, walletType string) (*db.Wallet, error) {
	body := map[string]string{
		"address":     address,
		"network":     network,
		"name":        name,
		"wallet_type": walletType,
	}
	var wallet db.Wallet
	if err := c.do(ctx, "POST", "/api/v1/wallets", body, http.StatusCreated, &wallet); err != nil {
		return nil, err
	}
	c.logger.Debug("wallet registered", "address", wallet.Address, "network", wallet.Network)
	return &wallet, nil
}

// ListWallets retrieves tracked wallets, optionally filtered by network.
func (c *Client) ListWallets(ctx context.Context, network string) ([]*db.Wallet, error) {
	path := "/api/v1/wallets"
	if network != "" {
		path += "?network=" + url.QueryEscape(network)
	}
	var wallets []*db.Wallet
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// UnregisterWallet tells the server to stop tracking a wallet.
func (c *Client) UnregisterWallet(ctx context.Context, address, network string) error {
	path := fmt.Sprintf("/api/v1/wallets/%s?network=%s", url.PathEscape(address), url.QueryEscape(network))
	return c.do(ctx, "DELETE", path, nil, http.StatusNoContent, nil)
}

// SetOverride assigns a manual category to a transaction.
func (c *Client) SetOverride(ctx context.Context, txHash, category string) (*db.Override, error) {
	var override db.Override
	path := "/api/v1/overrides/" + url.PathEscape(txHash)
	if err := c.do(ctx, "PUT", path, map[string]string{"category": category}, http.StatusOK, &override); err != nil {
		return nil, err
	}
	return &override, nil
}

// ListOverrides retrieves all overrides keyed by transaction hash.
func (c *Client) ListOverrides(ctx context.Context) (map[string]string, error) {
	var overrides map[string]string
	if err := c.do(ctx, "GET", "/api/v1/overrides", nil, http.StatusOK, &overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

// DeleteOverride removes a manual category assignment.
func (c *Client) DeleteOverride(ctx context.Context, txHash string) error {
	return c.do(ctx, "DELETE", "/api/v1/overrides/"+url.PathEscape(txHash), nil, http.StatusNoContent, nil)
}

// ExportRequest describes an export run.
type ExportRequest struct {
	WalletAddresses []string `json:"wallet_addresses,omitempty"`
	Network         string   `json:"network"`
	FromDate        string   `json:"from_date,omitempty"`
	ToDate          string   `json:"to_date,omitempty"`
	Format          string   `json:"format,omitempty"`
	IncludePrices   *bool    `json:"include_prices,omitempty"`
}

// CreateExport runs an export synchronously and returns the completed record.
func (c *Client) CreateExport(ctx context.Context, req ExportRequest) (*db.Export, error) {
	var e db.Export
	if err := c.do(ctx, "POST", "/api/v1/exports", req, http.StatusCreated, &e); err != nil {
		return nil, err
	}
	c.logger.Debug("export completed", "export_id", e.ID, "rows", e.RowCount)
	return &e, nil
}

// ListExports retrieves export records, newest first.
func (c *Client) ListExports(ctx context.Context, limit int) ([]*db.Export, error) {
	path := "/api/v1/exports"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var exports []*db.Export
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &exports); err != nil {
		return nil, err
	}
	return exports, nil
}

// GetExport retrieves a single export record.
func (c *Client) GetExport(ctx context.Context, id uuid.UUID) (*db.Export, error) {
	var e db.Export
	if err := c.do(ctx, "GET", "/api/v1/exports/"+id.String(), nil, http.StatusOK, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DownloadExport streams a completed export file to w.
func (c *Client) DownloadExport(ctx context.Context, id uuid.UUID, w io.Writer) error {
	return c.download(ctx, "/api/v1/exports/"+id.String()+"/download", w)
}

// InvoiceLineItem is one billable line on an invoice request.
type InvoiceLineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// InvoiceRequest describes a new invoice. Amounts and totals are computed
// by the server.
type InvoiceRequest struct {
	ClientName     string            `json:"client_name"`
	ClientAddress  string            `json:"client_address,omitempty"`
	ClientEmail    string            `json:"client_email,omitempty"`
	LineItems      []InvoiceLineItem `json:"line_items"`
	Currency       string            `json:"currency,omitempty"`
	TaxRate        decimal.Decimal   `json:"tax_rate"`
	PaymentNetwork string            `json:"payment_network,omitempty"`
	PaymentAddress string            `json:"payment_address,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	DueDate        string            `json:"due_date,omitempty"`
}

// CreateInvoice creates an invoice and renders its PDF.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*db.Invoice, error) {
	var inv db.Invoice
	if err := c.do(ctx, "POST", "/api/v1/invoices", req, http.StatusCreated, &inv); err != nil {
		return nil, err
	}
	c.logger.Debug("invoice created", "invoice_number", inv.InvoiceNumber)
	return &inv, nil
}

// ListInvoices retrieves invoices, newest first.
func (c *Client) ListInvoices(ctx context.Context, limit int) ([]*db.Invoice, error) {
	path := "/api/v1/invoices"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var invoices []*db.Invoice
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// GetInvoice retrieves a single invoice.
func (c *Client) GetInvoice(ctx context.Context, id uuid.UUID) (*db.Invoice, error) {
	var inv db.Invoice
	if err := c.do(ctx, "GET", "/api/v1/invoices/"+id.String(), nil, http.StatusOK, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// UpdateInvoiceStatus transitions an invoice to a new status.
func (c *Client) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status string) (*db.Invoice, error) {
	var inv db.Invoice
	path := "/api/v1/invoices/" + id.String() + "/status"
	if err := c.do(ctx, "PUT", path, map[string]string{"status": status}, http.StatusOK, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// DownloadInvoice streams the rendered PDF to w.
func (c *Client) DownloadInvoice(ctx context.Context, id uuid.UUID, w io.Writer) error {
	return c.download(ctx, "/api/v1/invoices/"+id.String()+"/pdf", w)
}

// GetProfile retrieves the sender profile printed on invoices.
func (c *Client) GetProfile(ctx context.Context) (*db.SenderProfile, error) {
	var p db.SenderProfile
	if err := c.do(ctx, "GET", "/api/v1/profile", nil, http.StatusOK, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile replaces the sender profile.
func (c *Client) UpdateProfile(ctx context.Context, p db.SenderProfile) (*db.SenderProfile, error) {
	var out db.SenderProfile
	if err := c.do(ctx, "PUT", "/api/v1/profile", p, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PriceQuote is the price of one asset on one day.
type PriceQuote struct {
	Asset string          `json:"asset"`
	Date  string          `json:"date"`
	USD   decimal.Decimal `json:"usd"`
	CAD   decimal.Decimal `json:"cad"`
}

// GetPrice looks up an asset's price on a date (yyyy-mm-dd, today if empty).
func (c *Client) GetPrice(ctx context.Context, asset, date string) (*PriceQuote, error) {
	path := "/api/v1/prices?asset=" + url.QueryEscape(asset)
	if date != "" {
		path += "&date=" + url.QueryEscape(date)
	}
	var quote PriceQuote
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// GetStats retrieves aggregate record counts.
func (c *Client) GetStats(ctx context.Context) (map[string]int, error) {
	var stats map[string]int
	if err := c.do(ctx, "GET", "/api/v1/stats", nil, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// do issues a JSON request and decodes the response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// download streams a file response to w.
func (c *Client) download(ctx context.Context, path string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}

// Categories returns the category names accepted by SetOverride.
func Categories() []string {
	out := make([]string, len(ledger.Categories))
	for i, c := range ledger.Categories {
		out[i] = string(c)
	}
	return out
}
