package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/chainledger/service/db"
	"github.com/brojonat/chainledger/service/fetch"
	"github.com/brojonat/chainledger/service/ledger"
	"github.com/brojonat/chainledger/service/prices"
)

const maxRequestBodySize = 1 << 20 // 1MB

// handleCreateWallet returns a handler that registers a wallet for tracking.
// POST /api/v1/wallets
func handleCreateWallet(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Address    string `json:"address"`
			Network    string `json:"network"`
			Name       string `json:"name"`
			WalletType string `json:"wallet_type"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := fetch.ValidateAddress(req.Network, req.Address); err != nil {
			logger.Debug("invalid wallet registration", "address", req.Address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.WalletType {
		case "", db.WalletTypeSelfCustodial, db.WalletTypeExchange:
		default:
			writeError(w, fmt.Sprintf("invalid wallet_type: %s", req.WalletType), http.StatusBadRequest)
			return
		}

		wallet, err := store.CreateWallet(r.Context(), db.CreateWalletParams{
			Address:    req.Address,
			Network:    req.Network,
			Name:       req.Name,
			WalletType: req.WalletType,
		})
		if err != nil {
			logger.Error("failed to create wallet", "address", req.Address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("wallet registered", "address", wallet.Address, "network", wallet.Network, "type", wallet.WalletType)
		writeJSON(w, wallet, http.StatusCreated)
	})
}

// handleListWallets returns a handler that lists tracked wallets.
// GET /api/v1/wallets?network={network}
func handleListWallets(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallets, err := store.ListWallets(r.Context(), r.URL.Query().Get("network"))
		if err != nil {
			logger.Error("failed to list wallets", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if wallets == nil {
			wallets = []*db.Wallet{}
		}
		writeJSON(w, wallets, http.StatusOK)
	})
}

// handleGetWallet returns a handler that retrieves one wallet.
// GET /api/v1/wallets/{address}?network={network}
func handleGetWallet(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		network := r.URL.Query().Get("network")

		wallet, err := store.GetWallet(r.Context(), address, network)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "wallet not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get wallet", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, wallet, http.StatusOK)
	})
}

// handleDeleteWallet returns a handler that unregisters a wallet.
// DELETE /api/v1/wallets/{address}?network={network}
func handleDeleteWallet(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		network := r.URL.Query().Get("network")

		if err := store.DeleteWallet(r.Context(), address, network); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "wallet not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to delete wallet", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("wallet unregistered", "address", address, "network", network)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleSetOverride returns a handler that sets a manual category for a transaction.
// PUT /api/v1/overrides/{tx_hash}
func handleSetOverride(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txHash := r.PathValue("tx_hash")
		var req struct {
			Category string `json:"category"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, ok := ledger.ParseCategory(req.Category); !ok {
			writeError(w, fmt.Sprintf("invalid category: %s", req.Category), http.StatusBadRequest)
			return
		}

		override, err := store.SetOverride(r.Context(), txHash, req.Category)
		if err != nil {
			logger.Error("failed to set override", "tx_hash", txHash, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("override set", "tx_hash", txHash, "category", override.Category)
		writeJSON(w, override, http.StatusOK)
	})
}

// handleGetOverride returns a handler that retrieves one override.
// GET /api/v1/overrides/{tx_hash}
func handleGetOverride(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txHash := r.PathValue("tx_hash")
		override, err := store.GetOverride(r.Context(), txHash)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "override not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get override", "tx_hash", txHash, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, override, http.StatusOK)
	})
}

// handleListOverrides returns a handler that lists all overrides as a
// tx_hash to category map.
// GET /api/v1/overrides
func handleListOverrides(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		overrides, err := store.ListOverrides(r.Context())
		if err != nil {
			logger.Error("failed to list overrides", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, overrides, http.StatusOK)
	})
}

// handleDeleteOverride returns a handler that removes an override.
// DELETE /api/v1/overrides/{tx_hash}
func handleDeleteOverride(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txHash := r.PathValue("tx_hash")
		if err := store.DeleteOverride(r.Context(), txHash); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "override not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to delete override", "tx_hash", txHash, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleGetProfile returns a handler that retrieves the sender profile.
// GET /api/v1/profile
func handleGetProfile(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, err := store.GetSenderProfile(r.Context())
		if err != nil {
			logger.Error("failed to get sender profile", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, profile, http.StatusOK)
	})
}

// handleUpdateProfile returns a handler that replaces the sender profile.
// PUT /api/v1/profile
func handleUpdateProfile(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req db.SenderProfile
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			writeError(w, "name is required", http.StatusBadRequest)
			return
		}

		profile, err := store.UpsertSenderProfile(r.Context(), req)
		if err != nil {
			logger.Error("failed to update sender profile", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, profile, http.StatusOK)
	})
}

// handleGetPrice returns a handler that resolves an asset price via the
// oracle. Defaults to today when no date is given.
// GET /api/v1/prices?asset={symbol}&date={yyyy-mm-dd}
func handleGetPrice(oracle prices.Oracle, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		asset := r.URL.Query().Get("asset")
		if asset == "" {
			writeError(w, "asset is required", http.StatusBadRequest)
			return
		}

		date := time.Now().UTC()
		if d := r.URL.Query().Get("date"); d != "" {
			parsed, err := time.Parse("2006-01-02", d)
			if err != nil {
				writeError(w, "invalid date, want yyyy-mm-dd", http.StatusBadRequest)
				return
			}
			date = parsed
		}

		quote, err := oracle.HistoricalPrice(r.Context(), asset, date)
		if err != nil {
			logger.Error("price lookup failed", "asset", asset, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]any{
			"asset": asset,
			"date":  date.Format("2006-01-02"),
			"usd":   quote.USD,
			"cad":   quote.CAD,
		}, http.StatusOK)
	})
}

// handleGetStats returns a handler that reports aggregate counts.
// GET /api/v1/stats
func handleGetStats(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallets, err := store.ListWallets(r.Context(), "")
		if err != nil {
			logger.Error("failed to list wallets for stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		overrides, err := store.ListOverrides(r.Context())
		if err != nil {
			logger.Error("failed to list overrides for stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		exports, err := store.ListExports(r.Context(), 0)
		if err != nil {
			logger.Error("failed to list exports for stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		invoices, err := store.ListInvoices(r.Context(), 0)
		if err != nil {
			logger.Error("failed to list invoices for stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		selfCustodial := 0
		for _, wallet := range wallets {
			if wallet.WalletType == db.WalletTypeSelfCustodial {
				selfCustodial++
			}
		}

		writeJSON(w, map[string]int{
			"wallet_count":         len(wallets),
			"self_custodial_count": selfCustodial,
			"override_count":       len(overrides),
			"export_count":         len(exports),
			"invoice_count":        len(invoices),
		}, http.StatusOK)
	})
}

// decodeJSON decodes a request body with a size cap and strict field checking.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
