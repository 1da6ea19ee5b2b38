package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/export"
	"github.com/brojonat/chainledger/service/fetch"
	"github.com/brojonat/chainledger/service/nats"
)

// handleCreateExport returns a handler that runs a full export synchronously:
// fetch, enrich, classify, total, render, then record the outcome and publish
// an event. Exports over large windows can take a while; the server's write
// timeout is sized for this.
// POST /api/v1/exports
func handleCreateExport(store *db.Store, exporter *export.Service, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			WalletAddresses []string `json:"wallet_addresses"`
			Network         string   `json:"network"`
			FromDate        string   `json:"from_date"`
			ToDate          string   `json:"to_date"`
			Format          string   `json:"format"`
			IncludePrices   *bool    `json:"include_prices"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.Format == "" {
			req.Format = "csv"
		}
		format := strings.ToLower(req.Format)
		if format != "csv" && format != "xlsx" {
			writeError(w, fmt.Sprintf("unsupported format: %s", req.Format), http.StatusBadRequest)
			return
		}
		req.Network = strings.ToLower(req.Network)
		if _, ok := fetch.SupportedNetworks[req.Network]; !ok {
			writeError(w, fmt.Sprintf("unsupported network: %s", req.Network), http.StatusBadRequest)
			return
		}

		fromDate, err := parseDateParam(req.FromDate)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		toDate, err := parseDateParam(req.ToDate)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()

		// When no addresses are given, export every tracked wallet on the
		// network.
		addresses := req.WalletAddresses
		if len(addresses) == 0 {
			wallets, err := store.ListWallets(ctx, req.Network)
			if err != nil {
				logger.Error("failed to list wallets for export", "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}
			for _, wallet := range wallets {
				addresses = append(addresses, wallet.Address)
			}
		}
		if len(addresses) == 0 {
			writeError(w, "no wallets to export; register one first", http.StatusBadRequest)
			return
		}

		overrides, err := store.ListOverrides(ctx)
		if err != nil {
			logger.Error("failed to list overrides for export", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		owned, err := store.ListSelfCustodialAddresses(ctx)
		if err != nil {
			logger.Error("failed to list owned addresses for export", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		record, err := store.CreateExport(ctx, format, req.Network)
		if err != nil {
			logger.Error("failed to create export record", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		includePrices := true
		if req.IncludePrices != nil {
			includePrices = *req.IncludePrices
		}

		result, err := exporter.Generate(ctx, export.Request{
			WalletAddresses:         addresses,
			Network:                 req.Network,
			FromDate:                fromDate,
			ToDate:                  toDate,
			Format:                  format,
			IncludePrices:           includePrices,
			Overrides:               overrides,
			ClassificationAddresses: owned,
		})
		if err != nil {
			logger.Error("export failed", "export_id", record.ID, "error", err)
			if failErr := store.FailExport(ctx, record.ID, err.Error()); failErr != nil {
				logger.Error("failed to record export failure", "export_id", record.ID, "error", failErr)
			}
			publishExportEvent(r, store, publisher, record.ID, logger)
			writeError(w, fmt.Sprintf("export failed: %v", err), http.StatusBadGateway)
			return
		}

		if err := store.CompleteExport(ctx, record.ID, result.Filename, result.TransactionCount, &result.Totals); err != nil {
			logger.Error("failed to record export completion", "export_id", record.ID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		publishExportEvent(r, store, publisher, record.ID, logger)

		completed, err := store.GetExport(ctx, record.ID)
		if err != nil {
			logger.Error("failed to reload export", "export_id", record.ID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, completed, http.StatusCreated)
	})
}

// publishExportEvent reloads the export record and publishes its current
// state. Publish failures are logged, never surfaced to the client.
func publishExportEvent(r *http.Request, store *db.Store, publisher nats.Publisher, id uuid.UUID, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	e, err := store.GetExport(r.Context(), id)
	if err != nil {
		logger.Error("failed to load export for event", "export_id", id, "error", err)
		return
	}
	if err := publisher.PublishExportCompleted(r.Context(), nats.FromExport(e)); err != nil {
		logger.Error("failed to publish export event", "export_id", id, "error", err)
	}
}

// handleListExports returns a handler that lists export runs, newest first.
// GET /api/v1/exports?limit={n}
func handleListExports(store *db.Store, logger *slog.Logger) http.Handler {
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

		exports, err := store.ListExports(r.Context(), limit)
		if err != nil {
			logger.Error("failed to list exports", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if exports == nil {
			exports = []*db.Export{}
		}
		writeJSON(w, exports, http.StatusOK)
	})
}

// handleGetExport returns a handler that retrieves one export record.
// GET /api/v1/exports/{id}
func handleGetExport(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, "invalid export id", http.StatusBadRequest)
			return
		}

		e, err := store.GetExport(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "export not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get export", "export_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, e, http.StatusOK)
	})
}

// handleDownloadExport returns a handler that streams a completed export file.
// GET /api/v1/exports/{id}/download
func handleDownloadExport(store *db.Store, exportDir string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, "invalid export id", http.StatusBadRequest)
			return
		}

		e, err := store.GetExport(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "export not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get export", "export_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if e.Status != db.ExportStatusCompleted || e.Filename == "" {
			writeError(w, "export is not completed", http.StatusConflict)
			return
		}

		serveFile(w, r, exportDir, e.Filename, contentTypeForFormat(e.Format), logger)
	})
}

func contentTypeForFormat(format string) string {
	if format == "xlsx" {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// serveFile streams a generated file from dir. The stored filename is
// flattened with filepath.Base so a corrupted record can't traverse out of
// the output directory.
func serveFile(w http.ResponseWriter, r *http.Request, dir, filename, contentType string, logger *slog.Logger) {
	path := filepath.Join(dir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		logger.Error("generated file missing on disk", "path", path, "error", err)
		writeError(w, "file not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(filename)))
	http.ServeFile(w, r, path)
}

// parseDateParam parses an optional yyyy-mm-dd date string.
func parseDateParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want yyyy-mm-dd", s)
	}
	return &t, nil
}
