package invoice

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/chainledger/service/db"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleInvoice() *db.Invoice {
	return &db.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: "INV-0042",
		ClientName:    "Acme Corp",
		ClientEmail:   "ap@acme.example",
		LineItems: []db.LineItem{
			{Description: "Protocol integration work", Quantity: dec("20"), UnitPrice: dec("150"), Amount: dec("3000")},
			{Description: "Audit support", Quantity: dec("4"), UnitPrice: dec("200"), Amount: dec("800")},
		},
		Currency:  "USD",
		Subtotal:  dec("3800"),
		TaxRate:   dec("0.13"),
		TaxAmount: dec("494"),
		Total:     dec("4294"),
		CreatedAt: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
}

func sampleSender() *db.SenderProfile {
	return &db.SenderProfile{
		Name:        "Chain Consulting Inc",
		AddressLine: "123 Main St, Toronto ON",
		Email:       "billing@chainconsulting.example",
		TaxID:       "123456789 RT0001",
	}
}

func TestFilename(t *testing.T) {
	date := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "invoice_INV-0042_20240510.pdf", Filename("INV-0042", date))
	// Path separators in the number cannot escape the output directory.
	assert.Equal(t, "invoice_INV-2024-05_20240510.pdf", Filename(`INV/2024\05`, date))
}

func TestPaymentURI(t *testing.T) {
	assert.Equal(t, "ethereum:0xabc", paymentURI("Ethereum", "0xabc"))
	assert.Equal(t, "bitcoin:bc1xyz", paymentURI("bitcoin", "bc1xyz"))
	assert.Equal(t, "addr", paymentURI("", "addr"))
}

func TestGenerate_WritesPDF(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(dir, nil, nil)

	filename, err := g.Generate(sampleInvoice(), sampleSender())
	require.NoError(t, err)
	assert.Equal(t, "invoice_INV-0042_20240510.pdf", filename)

	content, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)
	assert.True(t, len(content) > 1000, "pdf should have substance")
	assert.Equal(t, "%PDF", string(content[:4]))
}

func TestGenerate_WithPaymentWallet(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(dir, nil, nil)

	inv := sampleInvoice()
	inv.InvoiceNumber = "INV-0043"
	inv.PaymentNetwork = "ethereum"
	inv.PaymentAddress = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

	plainName, err := g.Generate(sampleInvoice(), sampleSender())
	require.NoError(t, err)
	withQRName, err := g.Generate(inv, sampleSender())
	require.NoError(t, err)

	plain, err := os.ReadFile(filepath.Join(dir, plainName))
	require.NoError(t, err)
	withQR, err := os.ReadFile(filepath.Join(dir, withQRName))
	require.NoError(t, err)
	assert.Greater(t, len(withQR), len(plain), "embedded QR image should grow the file")
}

func TestGenerate_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "invoices")
	g := NewGenerator(dir, nil, nil)

	filename, err := g.Generate(sampleInvoice(), sampleSender())
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, filename))
	assert.NoError(t, err)
}
