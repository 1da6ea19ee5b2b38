package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/chainledger/service/config"
	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/export"
	"github.com/brojonat/chainledger/service/fetch"
	"github.com/brojonat/chainledger/service/invoice"
	"github.com/brojonat/chainledger/service/ledger"
	"github.com/brojonat/chainledger/service/nats"
	"github.com/brojonat/chainledger/service/prices"
)

func TestParseDateParam(t *testing.T) {
	got, err := parseDateParam("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDateParam("2024-03-15")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *got)

	_, err = parseDateParam("15/03/2024")
	assert.Error(t, err)
}

func TestContentTypeForFormat(t *testing.T) {
	assert.Equal(t, "text/csv", contentTypeForFormat("csv"))
	assert.Contains(t, contentTypeForFormat("xlsx"), "spreadsheetml")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","bogus":1}`))
	err := decodeJSON(r, &dst)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request body")
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, "boom", http.StatusBadRequest)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "boom", body["error"])
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := corsMiddleware(inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/wallets", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallets", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

// stubFetcher returns a canned set of rows regardless of address.
type stubFetcher struct {
	rows []*fetch.LedgerRow
}

func (f *stubFetcher) FetchTransactions(_ context.Context, address string, _, _ *time.Time) ([]*fetch.LedgerRow, error) {
	return f.rows, nil
}

func (f *stubFetcher) Close() {}

// testEnv wires a full server against the test database with stubbed
// blockchain and price providers.
type testEnv struct {
	store     *db.TestStore
	publisher *nats.MockPublisher
	client    *http.Client
	baseURL   string
}

func newTestEnv(t *testing.T, rows []*fetch.LedgerRow) *testEnv {
	t.Helper()

	store := db.NewTestStore(t)
	t.Cleanup(store.Close)
	store.Cleanup(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exportDir := t.TempDir()
	invoiceDir := t.TempDir()

	cfg := &config.Config{
		ExportDir:     exportDir,
		InvoiceDir:    invoiceDir,
		InvoicePrefix: "INV",
	}
	oracle := &prices.StaticOracle{Quotes: map[string]prices.Quote{
		"ETH": {USD: decimal.NewFromInt(2000), CAD: decimal.NewFromInt(2700)},
	}}
	factory := func(network string) (fetch.Fetcher, error) {
		return &stubFetcher{rows: rows}, nil
	}
	exporter := export.NewService(factory, oracle, exportDir, nil, logger)
	generator := invoice.NewGenerator(invoiceDir, nil, logger)
	publisher := nats.NewMockPublisher()

	srv := New(":0", cfg, store.Store, exporter, generator, oracle, publisher, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		store:     store,
		publisher: publisher,
		client:    ts.Client(),
		baseURL:   ts.URL,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.baseURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestWalletEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	// Register a wallet.
	resp := env.do(t, http.MethodPost, "/api/v1/wallets", map[string]string{
		"address": "0xAbC0000000000000000000000000000000000001",
		"network": "ethereum",
		"name":    "hot wallet",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[db.Wallet](t, resp)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", created.Address)
	assert.Equal(t, db.WalletTypeSelfCustodial, created.WalletType)

	// Invalid address is rejected.
	resp = env.do(t, http.MethodPost, "/api/v1/wallets", map[string]string{
		"address": "not-an-address",
		"network": "ethereum",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// List and fetch.
	resp = env.do(t, http.MethodGet, "/api/v1/wallets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	wallets := decodeBody[[]db.Wallet](t, resp)
	require.Len(t, wallets, 1)

	resp = env.do(t, http.MethodGet, "/api/v1/wallets/"+created.Address+"?network=ethereum", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Delete, then 404.
	resp = env.do(t, http.MethodDelete, "/api/v1/wallets/"+created.Address+"?network=ethereum", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/wallets/"+created.Address+"?network=ethereum", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestOverrideEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPut, "/api/v1/overrides/0xdeadbeef", map[string]string{
		"category": "transfer",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	o := decodeBody[db.Override](t, resp)
	assert.Equal(t, "TRANSFER", o.Category)

	resp = env.do(t, http.MethodPut, "/api/v1/overrides/0xdeadbeef", map[string]string{
		"category": "refund",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/overrides", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "TRANSFER", all["0xdeadbeef"])

	resp = env.do(t, http.MethodDelete, "/api/v1/overrides/0xdeadbeef", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/overrides/0xdeadbeef", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestExportEndpoints(t *testing.T) {
	wallet := "0xabc0000000000000000000000000000000000001"
	rows := []*fetch.LedgerRow{
		{
			TxHash:      "0x01",
			BlockNumber: 100,
			BlockTime:   time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
			FromAddress: "0xother",
			ToAddress:   wallet,
			Direction:   ledger.DirectionIn,
			Network:     "Ethereum",
			Asset:       "ETH",
			Amount:      decimal.NewFromInt(2),
			TxStatus:    "Success",
		},
		{
			TxHash:      "0x02",
			BlockNumber: 101,
			BlockTime:   time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC),
			FromAddress: wallet,
			ToAddress:   "0xother",
			Direction:   ledger.DirectionOut,
			Network:     "Ethereum",
			Asset:       "ETH",
			Amount:      decimal.NewFromInt(1),
			TxFeeNative: decimal.RequireFromString("0.01"),
			TxStatus:    "Success",
		},
	}
	env := newTestEnv(t, rows)

	resp := env.do(t, http.MethodPost, "/api/v1/wallets", map[string]string{
		"address": wallet,
		"network": "ethereum",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// No wallets on an unsupported network.
	resp = env.do(t, http.MethodPost, "/api/v1/exports", map[string]any{
		"network": "dogecoin",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Run a real export; addresses default to the registered wallets.
	resp = env.do(t, http.MethodPost, "/api/v1/exports", map[string]any{
		"network": "ethereum",
		"format":  "csv",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	e := decodeBody[db.Export](t, resp)
	assert.Equal(t, db.ExportStatusCompleted, e.Status)
	assert.Equal(t, 2, e.RowCount)
	require.NotNil(t, e.Totals)
	assert.True(t, e.Totals.GrossRevenueUSD.Equal(decimal.NewFromInt(4000)),
		"got revenue %s", e.Totals.GrossRevenueUSD)

	// The completion event was published.
	events := env.publisher.ExportEvents()
	require.Len(t, events, 1)
	assert.Equal(t, e.ID, events[0].ExportID)
	assert.Equal(t, db.ExportStatusCompleted, events[0].Status)

	// Record is retrievable and listed.
	resp = env.do(t, http.MethodGet, "/api/v1/exports/"+e.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/exports", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]db.Export](t, resp)
	require.Len(t, list, 1)

	// Download the generated file.
	resp = env.do(t, http.MethodGet, "/api/v1/exports/"+e.ID.String()+"/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(data), "Transaction Hash")
	assert.Contains(t, string(data), "SUMMARY")
}

func TestInvoiceEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	// Sender profile shows up on rendered invoices.
	resp := env.do(t, http.MethodPut, "/api/v1/profile", map[string]string{
		"name":  "Acme Consulting",
		"email": "billing@acme.test",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	body := map[string]any{
		"client_name": "Big Corp",
		"currency":    "USD",
		"tax_rate":    "0.13",
		"line_items": []map[string]any{
			{"description": "Consulting", "quantity": "10", "unit_price": "150"},
			{"description": "Support retainer", "quantity": "1", "unit_price": "500"},
		},
		"payment_network": "ethereum",
		"payment_address": "0xabc0000000000000000000000000000000000001",
	}
	resp = env.do(t, http.MethodPost, "/api/v1/invoices", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	inv := decodeBody[db.Invoice](t, resp)

	assert.Equal(t, "INV-0001", inv.InvoiceNumber)
	assert.True(t, inv.Subtotal.Equal(decimal.NewFromInt(2000)), "subtotal %s", inv.Subtotal)
	assert.True(t, inv.TaxAmount.Equal(decimal.NewFromInt(260)), "tax %s", inv.TaxAmount)
	assert.True(t, inv.Total.Equal(decimal.NewFromInt(2260)), "total %s", inv.Total)
	assert.Equal(t, db.InvoiceStatusDraft, inv.Status)
	assert.NotEmpty(t, inv.Filename)

	// Creation event.
	events := env.publisher.InvoiceEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "INV-0001", events[0].InvoiceNumber)
	assert.Equal(t, "2260.00", events[0].Total)

	// Download the PDF.
	resp = env.do(t, http.MethodGet, "/api/v1/invoices/"+inv.ID.String()+"/pdf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	pdf, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	// Status transition publishes again.
	resp = env.do(t, http.MethodPut, "/api/v1/invoices/"+inv.ID.String()+"/status", map[string]string{
		"status": "sent",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[db.Invoice](t, resp)
	assert.Equal(t, db.InvoiceStatusSent, updated.Status)
	require.Len(t, env.publisher.InvoiceEvents(), 2)

	// Bad transition.
	resp = env.do(t, http.MethodPut, "/api/v1/invoices/"+inv.ID.String()+"/status", map[string]string{
		"status": "shredded",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Second invoice gets the next number.
	resp = env.do(t, http.MethodPost, "/api/v1/invoices", map[string]any{
		"client_name": "Other Corp",
		"line_items": []map[string]any{
			{"description": "Audit", "quantity": "1", "unit_price": "999.99"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	second := decodeBody[db.Invoice](t, resp)
	assert.Equal(t, "INV-0002", second.InvoiceNumber)

	// Delete.
	resp = env.do(t, http.MethodDelete, "/api/v1/invoices/"+second.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/invoices/"+second.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProfileAndStatsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decodeBody[db.SenderProfile](t, resp)
	assert.Empty(t, empty.Name)

	resp = env.do(t, http.MethodPut, "/api/v1/profile", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPut, "/api/v1/profile", map[string]string{
		"name": "Acme Consulting",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeBody[map[string]int](t, resp)
	assert.Equal(t, 0, stats["wallet_count"])
	assert.Equal(t, 0, stats["export_count"])
}

func TestPriceEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/prices?asset=ETH&date=2024-01-10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "ETH", body["asset"])
	assert.Equal(t, "2024-01-10", body["date"])
	assert.Equal(t, "2000", fmt.Sprintf("%v", body["usd"]))

	resp = env.do(t, http.MethodGet, "/api/v1/prices", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/prices?asset=ETH&date=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(data))
}
