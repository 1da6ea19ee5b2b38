package nats

import (
	"time"

	"github.com/google/uuid"

	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/ledger"
)

// ExportCompletedEvent is published to "ledger.exports" when an export run
// finishes, successfully or not.
type ExportCompletedEvent struct {
	ExportID         uuid.UUID             `json:"export_id"`
	Filename         string                `json:"filename,omitempty"`
	Format           string                `json:"format"`
	Network          string                `json:"network"`
	Status           string                `json:"status"`
	TransactionCount int                   `json:"transaction_count"`
	Totals           *ledger.TotalsSummary `json:"totals,omitempty"`
	Error            string                `json:"error,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// InvoiceCreatedEvent is published to "ledger.invoices" when an invoice is
// created or changes status.
type InvoiceCreatedEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	ClientName    string    `json:"client_name"`
	Currency      string    `json:"currency"`
	Total         string    `json:"total"`
	Status        string    `json:"status"`

	PublishedAt time.Time `json:"published_at"`
}

// FromInvoice converts a stored invoice to its published event form.
func FromInvoice(inv *db.Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		ClientName:    inv.ClientName,
		Currency:      inv.Currency,
		Total:         inv.Total.StringFixed(2),
		Status:        inv.Status,
		PublishedAt:   time.Now().UTC(),
	}
}

// FromExport converts a stored export record to its published event form.
func FromExport(e *db.Export) *ExportCompletedEvent {
	return &ExportCompletedEvent{
		ExportID:         e.ID,
		Filename:         e.Filename,
		Format:           e.Format,
		Network:          e.Network,
		Status:           e.Status,
		TransactionCount: e.RowCount,
		Totals:           e.Totals,
		Error:            e.Error,
		PublishedAt:      time.Now().UTC(),
	}
}
