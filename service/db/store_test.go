package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/chainledger/service/ledger"
)

func TestWalletLifecycle(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)
	ctx := context.Background()

	w, err := ts.CreateWallet(ctx, CreateWalletParams{
		Address: "0xABCDEF0123456789abcdef0123456789ABCDEF01",
		Network: "ethereum",
		Name:    "ops wallet",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", w.Address, "addresses are stored lowercase")
	assert.Equal(t, WalletTypeSelfCustodial, w.WalletType, "default wallet type")

	// Lookups are case-insensitive.
	got, err := ts.GetWallet(ctx, "0xABCDEF0123456789ABCDEF0123456789ABCDEF01", "ethereum")
	require.NoError(t, err)
	assert.Equal(t, w.Address, got.Address)

	// Re-creating the same wallet updates name and type instead of failing.
	w2, err := ts.CreateWallet(ctx, CreateWalletParams{
		Address:    w.Address,
		Network:    "ethereum",
		Name:       "exchange deposit",
		WalletType: WalletTypeExchange,
	})
	require.NoError(t, err)
	assert.Equal(t, WalletTypeExchange, w2.WalletType)

	require.NoError(t, ts.DeleteWallet(ctx, w.Address, "ethereum"))
	_, err = ts.GetWallet(ctx, w.Address, "ethereum")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, ts.DeleteWallet(ctx, w.Address, "ethereum"), ErrNotFound)
}

func TestListSelfCustodialAddresses(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)
	ctx := context.Background()

	_, err := ts.CreateWallet(ctx, CreateWalletParams{
		Address: "0x1111111111111111111111111111111111111111",
		Network: "ethereum",
	})
	require.NoError(t, err)
	_, err = ts.CreateWallet(ctx, CreateWalletParams{
		Address:    "0x2222222222222222222222222222222222222222",
		Network:    "ethereum",
		WalletType: WalletTypeExchange,
	})
	require.NoError(t, err)

	addrs, err := ts.ListSelfCustodialAddresses(ctx)
	require.NoError(t, err)
	require.Len(t, addrs, 1, "exchange wallets are excluded from the ownership set")
	assert.Equal(t, "0x1111111111111111111111111111111111111111", addrs[0])
}

func TestOverrides(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)
	ctx := context.Background()

	_, err := ts.SetOverride(ctx, "0xhash1", "not-a-category")
	assert.Error(t, err)

	o, err := ts.SetOverride(ctx, "0xhash1", "expense")
	require.NoError(t, err)
	assert.Equal(t, string(ledger.CategoryExpense), o.Category, "category is normalized")

	// Updating replaces the category.
	o, err = ts.SetOverride(ctx, "0xhash1", "Income")
	require.NoError(t, err)
	assert.Equal(t, string(ledger.CategoryIncome), o.Category)

	_, err = ts.SetOverride(ctx, "0xhash2", "Transfer")
	require.NoError(t, err)

	overrides, err := ts.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"0xhash1": "Income",
		"0xhash2": "Transfer",
	}, overrides)

	require.NoError(t, ts.DeleteOverride(ctx, "0xhash1"))
	_, err = ts.GetOverride(ctx, "0xhash1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportLifecycle(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)
	ctx := context.Background()

	e, err := ts.CreateExport(ctx, "csv", "ethereum")
	require.NoError(t, err)
	assert.Equal(t, ExportStatusPending, e.Status)

	totals := ledger.ComputeTotals([]ledger.EnrichedTransaction{
		{Category: ledger.CategoryIncome, USDValue: decPtr("100")},
	})
	require.NoError(t, ts.CompleteExport(ctx, e.ID, "ledger_2024.csv", 42, &totals))

	got, err := ts.GetExport(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ExportStatusCompleted, got.Status)
	assert.Equal(t, "ledger_2024.csv", got.Filename)
	assert.Equal(t, 42, got.RowCount)
	require.NotNil(t, got.Totals)
	assert.Equal(t, "100", got.Totals.GrossRevenueUSD.String())

	e2, err := ts.CreateExport(ctx, "xlsx", "bitcoin")
	require.NoError(t, err)
	require.NoError(t, ts.FailExport(ctx, e2.ID, "provider unavailable"))

	list, err := ts.ListExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, e2.ID, list[0].ID, "newest first")
	assert.Equal(t, "provider unavailable", list[0].Error)

	_, err = ts.GetExport(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvoiceLifecycle(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)
	ctx := context.Background()

	due := time.Now().AddDate(0, 1, 0).UTC().Truncate(24 * time.Hour)
	inv, err := ts.CreateInvoice(ctx, CreateInvoiceParams{
		InvoiceNumber: "INV-0001",
		ClientName:    "Acme Corp",
		LineItems: []LineItem{
			{Description: "Consulting", Quantity: dec("10"), UnitPrice: dec("150"), Amount: dec("1500")},
		},
		Subtotal:       dec("1500"),
		TaxRate:        dec("0.13"),
		TaxAmount:      dec("195"),
		Total:          dec("1695"),
		PaymentNetwork: "ethereum",
		PaymentAddress: "0x1111111111111111111111111111111111111111",
		DueDate:        &due,
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "USD", inv.Currency)
	require.Len(t, inv.LineItems, 1)
	assert.True(t, inv.Total.Equal(dec("1695")))

	inv, err = ts.UpdateInvoiceStatus(ctx, inv.ID, InvoiceStatusSent)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusSent, inv.Status)

	_, err = ts.UpdateInvoiceStatus(ctx, inv.ID, "lost")
	assert.Error(t, err)

	require.NoError(t, ts.SetInvoiceFilename(ctx, inv.ID, "INV-0001.pdf"))
	got, err := ts.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-0001.pdf", got.Filename)

	require.NoError(t, ts.DeleteInvoice(ctx, inv.ID))
	_, err = ts.GetInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextInvoiceNumber(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)
	ctx := context.Background()

	n1, err := ts.NextInvoiceNumber(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", n1)

	n2, err := ts.NextInvoiceNumber(ctx, "INV")
	require.NoError(t, err)
	assert.Equal(t, "INV-0002", n2)

	// Prefixes count independently.
	other, err := ts.NextInvoiceNumber(ctx, "CL")
	require.NoError(t, err)
	assert.Equal(t, "CL-0001", other)
}

func TestSenderProfile(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)
	ctx := context.Background()

	// Missing profile reads as empty, not as an error.
	p, err := ts.GetSenderProfile(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.Name)

	_, err = ts.UpsertSenderProfile(ctx, SenderProfile{
		Name:        "Chain Consulting Inc",
		AddressLine: "123 Main St, Toronto ON",
		Email:       "billing@example.com",
	})
	require.NoError(t, err)

	updated, err := ts.UpsertSenderProfile(ctx, SenderProfile{
		Name:  "Chain Consulting Inc",
		Email: "accounts@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "accounts@example.com", updated.Email)

	p, err = ts.GetSenderProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Chain Consulting Inc", p.Name)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
