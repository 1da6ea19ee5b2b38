package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/invoice"
	"github.com/brojonat/chainledger/service/nats"
)

// invoiceLineItem is the request shape for one billable line. Amount is
// computed server-side from quantity and unit price.
type invoiceLineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// handleCreateInvoice returns a handler that allocates an invoice number,
// stores the invoice, renders the PDF, and publishes a creation event.
// POST /api/v1/invoices
func handleCreateInvoice(store *db.Store, generator *invoice.Generator, publisher nats.Publisher, prefix string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ClientName     string            `json:"client_name"`
			ClientAddress  string            `json:"client_address"`
			ClientEmail    string            `json:"client_email"`
			LineItems      []invoiceLineItem `json:"line_items"`
			Currency       string            `json:"currency"`
			TaxRate        decimal.Decimal   `json:"tax_rate"`
			PaymentNetwork string            `json:"payment_network"`
			PaymentAddress string            `json:"payment_address"`
			Notes          string            `json:"notes"`
			DueDate        string            `json:"due_date"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.ClientName == "" {
			writeError(w, "client_name is required", http.StatusBadRequest)
			return
		}
		if len(req.LineItems) == 0 {
			writeError(w, "at least one line item is required", http.StatusBadRequest)
			return
		}
		if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
			writeError(w, "tax_rate must be between 0 and 1", http.StatusBadRequest)
			return
		}

		var dueDate *time.Time
		if req.DueDate != "" {
			parsed, err := time.Parse("2006-01-02", req.DueDate)
			if err != nil {
				writeError(w, "invalid due_date, want yyyy-mm-dd", http.StatusBadRequest)
				return
			}
			dueDate = &parsed
		}

		// Line amounts and totals are computed here, not trusted from the
		// client. Rounding happens once at the total level.
		items := make([]db.LineItem, len(req.LineItems))
		subtotal := decimal.Zero
		for i, li := range req.LineItems {
			if li.Description == "" {
				writeError(w, fmt.Sprintf("line item %d: description is required", i+1), http.StatusBadRequest)
				return
			}
			if !li.Quantity.IsPositive() {
				writeError(w, fmt.Sprintf("line item %d: quantity must be positive", i+1), http.StatusBadRequest)
				return
			}
			amount := li.Quantity.Mul(li.UnitPrice)
			items[i] = db.LineItem{
				Description: li.Description,
				Quantity:    li.Quantity,
				UnitPrice:   li.UnitPrice,
				Amount:      amount,
			}
			subtotal = subtotal.Add(amount)
		}
		subtotal = subtotal.RoundBank(2)
		taxAmount := subtotal.Mul(req.TaxRate).RoundBank(2)
		total := subtotal.Add(taxAmount)

		ctx := r.Context()
		number, err := store.NextInvoiceNumber(ctx, prefix)
		if err != nil {
			logger.Error("failed to allocate invoice number", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		inv, err := store.CreateInvoice(ctx, db.CreateInvoiceParams{
			InvoiceNumber:  number,
			ClientName:     req.ClientName,
			ClientAddress:  req.ClientAddress,
			ClientEmail:    req.ClientEmail,
			LineItems:      items,
			Currency:       req.Currency,
			Subtotal:       subtotal,
			TaxRate:        req.TaxRate,
			TaxAmount:      taxAmount,
			Total:          total,
			PaymentNetwork: req.PaymentNetwork,
			PaymentAddress: req.PaymentAddress,
			Notes:          req.Notes,
			DueDate:        dueDate,
		})
		if err != nil {
			logger.Error("failed to create invoice", "invoice_number", number, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		sender, err := store.GetSenderProfile(ctx)
		if err != nil {
			logger.Error("failed to load sender profile", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		filename, err := generator.Generate(inv, sender)
		if err != nil {
			logger.Error("failed to render invoice pdf", "invoice_number", number, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if err := store.SetInvoiceFilename(ctx, inv.ID, filename); err != nil {
			logger.Error("failed to record invoice filename", "invoice_id", inv.ID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		inv.Filename = filename

		if publisher != nil {
			if err := publisher.PublishInvoiceCreated(ctx, nats.FromInvoice(inv)); err != nil {
				logger.Error("failed to publish invoice event", "invoice_id", inv.ID, "error", err)
			}
		}

		logger.Info("invoice created",
			"invoice_number", inv.InvoiceNumber,
			"client", inv.ClientName,
			"total", inv.Total.StringFixed(2),
		)
		writeJSON(w, inv, http.StatusCreated)
	})
}

// handleListInvoices returns a handler that lists invoices, newest first.
// GET /api/v1/invoices?limit={n}
func handleListInvoices(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			parsed, err := strconv.Atoi(l)
			if err != nil || parsed < 0 {
				writeError(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		invoices, err := store.ListInvoices(r.Context(), limit)
		if err != nil {
			logger.Error("failed to list invoices", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if invoices == nil {
			invoices = []*db.Invoice{}
		}
		writeJSON(w, invoices, http.StatusOK)
	})
}

// handleGetInvoice returns a handler that retrieves one invoice.
// GET /api/v1/invoices/{id}
func handleGetInvoice(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, "invalid invoice id", http.StatusBadRequest)
			return
		}

		inv, err := store.GetInvoice(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "invoice not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get invoice", "invoice_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, inv, http.StatusOK)
	})
}

// handleUpdateInvoiceStatus returns a handler that transitions an invoice's
// status and re-publishes it.
// PUT /api/v1/invoices/{id}/status
func handleUpdateInvoiceStatus(store *db.Store, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, "invalid invoice id", http.StatusBadRequest)
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		inv, err := store.UpdateInvoiceStatus(r.Context(), id, req.Status)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "invoice not found", http.StatusNotFound)
				return
			}
			logger.Debug("invoice status update rejected", "invoice_id", id, "status", req.Status, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if publisher != nil {
			if err := publisher.PublishInvoiceCreated(r.Context(), nats.FromInvoice(inv)); err != nil {
				logger.Error("failed to publish invoice event", "invoice_id", inv.ID, "error", err)
			}
		}

		logger.Info("invoice status updated", "invoice_number", inv.InvoiceNumber, "status", inv.Status)
		writeJSON(w, inv, http.StatusOK)
	})
}

// handleDeleteInvoice returns a handler that removes an invoice.
// DELETE /api/v1/invoices/{id}
func handleDeleteInvoice(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, "invalid invoice id", http.StatusBadRequest)
			return
		}

		if err := store.DeleteInvoice(r.Context(), id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "invoice not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to delete invoice", "invoice_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleDownloadInvoice returns a handler that streams the rendered PDF.
// GET /api/v1/invoices/{id}/pdf
func handleDownloadInvoice(store *db.Store, invoiceDir string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, "invalid invoice id", http.StatusBadRequest)
			return
		}

		inv, err := store.GetInvoice(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "invoice not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get invoice", "invoice_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if inv.Filename == "" {
			writeError(w, "invoice has no rendered pdf", http.StatusConflict)
			return
		}

		serveFile(w, r, invoiceDir, inv.Filename, "application/pdf", logger)
	})
}
