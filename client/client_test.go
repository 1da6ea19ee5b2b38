package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/chainledger/service/db"
)

func TestRegisterWallet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/wallets", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xabc", body["address"])
		assert.Equal(t, "ethereum", body["network"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(db.Wallet{
			Address: "0xabc", Network: "ethereum", WalletType: db.WalletTypeSelfCustodial,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	wallet, err := c.RegisterWallet(context.Background(), "0xabc", "ethereum", "", "")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", wallet.Address)
}

func TestErrorResponsesSurfaceMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid category: refund"})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.SetOverride(context.Background(), "0xdead", "refund")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid category: refund")
}

func TestUnregisterWalletEscapesAddress(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query().Get("network")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	err := c.UnregisterWallet(context.Background(), "bc1q/odd", "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/wallets/bc1q%2Fodd", gotPath)
	assert.Equal(t, "bitcoin", gotQuery)
}

func TestCreateExport(t *testing.T) {
	id := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/exports", r.URL.Path)

		var req ExportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ethereum", req.Network)
		assert.Equal(t, "xlsx", req.Format)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(db.Export{
			ID: id, Format: "xlsx", Network: "ethereum",
			Status: db.ExportStatusCompleted, RowCount: 12,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	e, err := c.CreateExport(context.Background(), ExportRequest{Network: "ethereum", Format: "xlsx"})
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, 12, e.RowCount)
}

func TestDownloadExport(t *testing.T) {
	id := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/exports/"+id.String()+"/download", r.URL.Path)
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("Transaction Hash,Block Number\n"))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	var buf bytes.Buffer
	require.NoError(t, c.DownloadExport(context.Background(), id, &buf))
	assert.Contains(t, buf.String(), "Transaction Hash")
}

func TestCreateInvoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req InvoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Big Corp", req.ClientName)
		require.Len(t, req.LineItems, 1)
		assert.True(t, req.LineItems[0].UnitPrice.Equal(decimal.RequireFromString("150")))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(db.Invoice{
			ID:            uuid.New(),
			InvoiceNumber: "INV-0007",
			ClientName:    "Big Corp",
			Status:        db.InvoiceStatusDraft,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	inv, err := c.CreateInvoice(context.Background(), InvoiceRequest{
		ClientName: "Big Corp",
		LineItems: []InvoiceLineItem{
			{Description: "Consulting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("150")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-0007", inv.InvoiceNumber)
}

func TestGetPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETH", r.URL.Query().Get("asset"))
		assert.Equal(t, "2024-01-10", r.URL.Query().Get("date"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"asset": "ETH", "date": "2024-01-10", "usd": "2000", "cad": "2700",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	quote, err := c.GetPrice(context.Background(), "ETH", "2024-01-10")
	require.NoError(t, err)
	assert.True(t, quote.USD.Equal(decimal.NewFromInt(2000)))
	assert.True(t, quote.CAD.Equal(decimal.NewFromInt(2700)))
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte("OK"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	assert.NoError(t, c.Health(context.Background()))
}
