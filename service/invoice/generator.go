// Package invoice renders client invoices as PDF files, with an optional
// payment QR code when the invoice is payable to a tracked wallet.
package invoice

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/metrics"
)

// Generator renders invoices into an output directory.
type Generator struct {
	outputDir string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewGenerator creates a Generator writing PDFs under outputDir.
func NewGenerator(outputDir string, m *metrics.Metrics, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{outputDir: outputDir, logger: logger, metrics: m}
}

// Filename returns the deterministic filename for an invoice.
func Filename(invoiceNumber string, date time.Time) string {
	safe := strings.NewReplacer("/", "-", "\\", "-").Replace(invoiceNumber)
	return fmt.Sprintf("invoice_%s_%s.pdf", safe, date.UTC().Format("20060102"))
}

// paymentURI builds a wallet payment link for the QR code.
func paymentURI(network, address string) string {
	switch strings.ToLower(network) {
	case "ethereum":
		return "ethereum:" + address
	case "bitcoin":
		return "bitcoin:" + address
	default:
		return address
	}
}

// Generate renders the invoice to a PDF file and returns its filename.
func (g *Generator) Generate(inv *db.Invoice, sender *db.SenderProfile) (string, error) {
	filename := Filename(inv.InvoiceNumber, inv.CreatedAt)
	path := filepath.Join(g.outputDir, filename)

	pdf, err := g.render(inv, sender)
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordInvoiceGenerated("error")
		}
		return "", err
	}

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating invoice directory: %w", err)
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		if g.metrics != nil {
			g.metrics.RecordInvoiceGenerated("error")
		}
		return "", fmt.Errorf("writing invoice pdf: %w", err)
	}

	if g.metrics != nil {
		g.metrics.RecordInvoiceGenerated("success")
	}
	g.logger.Info("generated invoice", "invoice_number", inv.InvoiceNumber, "filename", filename)
	return filename, nil
}

const (
	inkDark   = 0x1a // header color components, #1a1a2e
	inkMid    = 0x4a
	inkLight  = 0x66
	ruleGray  = 0xe0
	pageWidth = 216 // letter, millimeters
	margin    = 19
)

func (g *Generator) render(inv *db.Invoice, sender *db.SenderProfile) (*fpdf.Fpdf, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.AddPage()
	usable := float64(pageWidth - 2*margin)

	// Title row: INVOICE left, number and date right.
	pdf.SetFont("Helvetica", "B", 28)
	pdf.SetTextColor(inkDark, inkDark, 0x2e)
	pdf.CellFormat(usable/2, 12, "INVOICE", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(inkMid, inkMid, 0x6a)
	pdf.CellFormat(usable/2, 12, inv.InvoiceNumber, "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(inkLight, inkLight, inkLight)
	pdf.CellFormat(usable, 6, "Date: "+inv.CreatedAt.UTC().Format("January 2, 2006"), "", 1, "R", false, 0, "")
	if inv.DueDate != nil {
		pdf.CellFormat(usable, 6, "Due: "+inv.DueDate.UTC().Format("January 2, 2006"), "", 1, "R", false, 0, "")
	}
	g.rule(pdf, usable)

	// From / Bill To columns.
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(inkMid, inkMid, 0x6a)
	pdf.CellFormat(usable/2, 8, "FROM", "", 0, "L", false, 0, "")
	pdf.CellFormat(usable/2, 8, "BILL TO", "", 1, "L", false, 0, "")

	fromLines := nonEmpty(sender.Name, sender.AddressLine, sender.Email, sender.Phone, sender.Website)
	if sender.TaxID != "" {
		fromLines = append(fromLines, "Tax ID: "+sender.TaxID)
	}
	toLines := nonEmpty(inv.ClientName, inv.ClientAddress, inv.ClientEmail)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0x33, 0x33, 0x33)
	for i := 0; i < max(len(fromLines), len(toLines)); i++ {
		pdf.CellFormat(usable/2, 5, at(fromLines, i), "", 0, "L", false, 0, "")
		pdf.CellFormat(usable/2, 5, at(toLines, i), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	// Line items table.
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(inkDark, inkDark, 0x2e)
	pdf.SetTextColor(0xff, 0xff, 0xff)
	colW := []float64{usable * 0.52, usable * 0.14, usable * 0.17, usable * 0.17}
	for i, h := range []string{"Description", "Qty", "Unit Price", "Amount"} {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(colW[i], 8, h, "", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0x33, 0x33, 0x33)
	for _, item := range inv.LineItems {
		pdf.CellFormat(colW[0], 7, item.Description, "B", 0, "L", false, 0, "")
		pdf.CellFormat(colW[1], 7, item.Quantity.String(), "B", 0, "R", false, 0, "")
		pdf.CellFormat(colW[2], 7, money(inv.Currency, item.UnitPrice.StringFixed(2)), "B", 0, "R", false, 0, "")
		pdf.CellFormat(colW[3], 7, money(inv.Currency, item.Amount.StringFixed(2)), "B", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	// Totals block, right-aligned.
	label := func(name, value string, bold bool) {
		if bold {
			pdf.SetFont("Helvetica", "B", 12)
			pdf.SetTextColor(inkDark, inkDark, 0x2e)
		} else {
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetTextColor(inkLight, inkLight, inkLight)
		}
		pdf.CellFormat(usable*0.66, 7, name, "", 0, "R", false, 0, "")
		pdf.CellFormat(usable*0.34, 7, value, "", 1, "R", false, 0, "")
	}
	label("Subtotal:", money(inv.Currency, inv.Subtotal.StringFixed(2)), false)
	if !inv.TaxRate.IsZero() {
		label(fmt.Sprintf("Tax (%s%%):", inv.TaxRate.Mul(hundred).StringFixed(2)), money(inv.Currency, inv.TaxAmount.StringFixed(2)), false)
	}
	label("Amount Due:", money(inv.Currency, inv.Total.StringFixed(2)), true)

	// Payment details with QR code when a payment wallet is attached.
	if inv.PaymentAddress != "" {
		g.rule(pdf, usable)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(inkMid, inkMid, 0x6a)
		pdf.CellFormat(usable, 8, "PAYMENT DETAILS", "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(0x33, 0x33, 0x33)
		network := inv.PaymentNetwork
		if network == "" {
			network = "crypto"
		}
		pdf.CellFormat(usable, 6, fmt.Sprintf("Send payment (%s) to:", network), "", 1, "L", false, 0, "")
		pdf.SetFont("Courier", "", 9)
		pdf.CellFormat(usable, 6, inv.PaymentAddress, "", 1, "L", false, 0, "")

		png, err := qrcode.Encode(paymentURI(inv.PaymentNetwork, inv.PaymentAddress), qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("encoding payment qr code: %w", err)
		}
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("payment-qr", opts, bytes.NewReader(png))
		pdf.ImageOptions("payment-qr", margin, pdf.GetY()+4, 30, 30, false, opts, 0, "")
		pdf.SetY(pdf.GetY() + 38)
	}

	if inv.Notes != "" {
		g.rule(pdf, usable)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(inkMid, inkMid, 0x6a)
		pdf.CellFormat(usable, 8, "NOTES", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(inkLight, inkLight, inkLight)
		pdf.MultiCell(usable, 5, inv.Notes, "", "L", false)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0x88, 0x88, 0x88)
	pdf.CellFormat(usable, 6, "Thank you for your business!", "", 1, "C", false, 0, "")

	if pdf.Err() {
		return nil, fmt.Errorf("rendering invoice: %w", pdf.Error())
	}
	return pdf, nil
}

func (g *Generator) rule(pdf *fpdf.Fpdf, usable float64) {
	pdf.Ln(4)
	pdf.SetDrawColor(ruleGray, ruleGray, ruleGray)
	y := pdf.GetY()
	pdf.Line(margin, y, margin+usable, y)
	pdf.Ln(4)
}

var hundred = decimal.NewFromInt(100)

func money(currency, amount string) string {
	return fmt.Sprintf("$%s %s", amount, currency)
}

func nonEmpty(lines ...string) []string {
	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func at(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}
