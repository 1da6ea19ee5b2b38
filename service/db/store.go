package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brojonat/chainledger/service/ledger"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Wallet types.
const (
	WalletTypeSelfCustodial = "self_custodial"
	WalletTypeExchange      = "exchange"
)

// Wallet is a tracked blockchain wallet. Self-custodial wallets participate
// in transfer detection; exchange wallets are tracked for fetching only.
type Wallet struct {
	Address    string    `json:"address"`
	Network    string    `json:"network"`
	Name       string    `json:"name"`
	WalletType string    `json:"wallet_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateWalletParams contains the parameters for registering a wallet.
type CreateWalletParams struct {
	Address    string
	Network    string
	Name       string
	WalletType string
}

// CreateWallet registers a wallet. Addresses are stored lowercase so that
// ownership checks and upserts are case-insensitive.
func (s *Store) CreateWallet(ctx context.Context, params CreateWalletParams) (*Wallet, error) {
	if params.WalletType == "" {
		params.WalletType = WalletTypeSelfCustodial
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO wallets (address, network, name, wallet_type)
		VALUES (lower($1), $2, $3, $4)
		ON CONFLICT (address, network)
		DO UPDATE SET name = EXCLUDED.name, wallet_type = EXCLUDED.wallet_type
		RETURNING address, network, name, wallet_type, created_at`,
		params.Address, params.Network, params.Name, params.WalletType,
	)
	var w Wallet
	if err := row.Scan(&w.Address, &w.Network, &w.Name, &w.WalletType, &w.CreatedAt); err != nil {
		return nil, fmt.Errorf("creating wallet: %w", err)
	}
	return &w, nil
}

// GetWallet retrieves a wallet by address and network.
func (s *Store) GetWallet(ctx context.Context, address, network string) (*Wallet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT address, network, name, wallet_type, created_at
		FROM wallets
		WHERE address = lower($1) AND network = $2`,
		address, network,
	)
	var w Wallet
	if err := row.Scan(&w.Address, &w.Network, &w.Name, &w.WalletType, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting wallet: %w", err)
	}
	return &w, nil
}

// ListWallets returns all wallets, optionally filtered by network.
func (s *Store) ListWallets(ctx context.Context, network string) ([]*Wallet, error) {
	query := `
		SELECT address, network, name, wallet_type, created_at
		FROM wallets`
	args := []any{}
	if network != "" {
		query += ` WHERE network = $1`
		args = append(args, network)
	}
	query += ` ORDER BY network, address`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*Wallet
	for rows.Next() {
		var w Wallet
		if err := rows.Scan(&w.Address, &w.Network, &w.Name, &w.WalletType, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning wallet: %w", err)
		}
		wallets = append(wallets, &w)
	}
	return wallets, rows.Err()
}

// ListSelfCustodialAddresses returns the addresses of all self-custodial
// wallets. This is the ownership set used for transfer detection; exchange
// deposit addresses are excluded so that deposits classify as transactions,
// not internal transfers.
func (s *Store) ListSelfCustodialAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address FROM wallets WHERE wallet_type = $1`,
		WalletTypeSelfCustodial,
	)
	if err != nil {
		return nil, fmt.Errorf("listing self-custodial addresses: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scanning address: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// DeleteWallet removes a wallet.
func (s *Store) DeleteWallet(ctx context.Context, address, network string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM wallets WHERE address = lower($1) AND network = $2`,
		address, network,
	)
	if err != nil {
		return fmt.Errorf("deleting wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Override is a manual category assignment for a single transaction.
type Override struct {
	TxHash    string    `json:"tx_hash"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetOverride creates or updates a category override for a transaction.
// The category must parse to a known ledger category.
func (s *Store) SetOverride(ctx context.Context, txHash, category string) (*Override, error) {
	cat, ok := ledger.ParseCategory(category)
	if !ok {
		return nil, fmt.Errorf("invalid category: %s", category)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO category_overrides (tx_hash, category)
		VALUES ($1, $2)
		ON CONFLICT (tx_hash)
		DO UPDATE SET category = EXCLUDED.category, updated_at = now()
		RETURNING tx_hash, category, created_at, updated_at`,
		strings.TrimSpace(txHash), string(cat),
	)
	var o Override
	if err := row.Scan(&o.TxHash, &o.Category, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, fmt.Errorf("setting override: %w", err)
	}
	return &o, nil
}

// GetOverride retrieves the override for a transaction hash.
func (s *Store) GetOverride(ctx context.Context, txHash string) (*Override, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT tx_hash, category, created_at, updated_at
		FROM category_overrides WHERE tx_hash = $1`,
		txHash,
	)
	var o Override
	if err := row.Scan(&o.TxHash, &o.Category, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting override: %w", err)
	}
	return &o, nil
}

// ListOverrides returns all overrides keyed by transaction hash, the shape
// the classifier consumes.
func (s *Store) ListOverrides(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, category FROM category_overrides`)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var hash, category string
		if err := rows.Scan(&hash, &category); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		overrides[hash] = category
	}
	return overrides, rows.Err()
}

// DeleteOverride removes an override.
func (s *Store) DeleteOverride(ctx context.Context, txHash string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM category_overrides WHERE tx_hash = $1`, txHash)
	if err != nil {
		return fmt.Errorf("deleting override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Export statuses.
const (
	ExportStatusPending   = "pending"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// Export records one generated accounting export.
type Export struct {
	ID        uuid.UUID             `json:"id"`
	Filename  string                `json:"filename"`
	Format    string                `json:"format"`
	Network   string                `json:"network"`
	Status    string                `json:"status"`
	RowCount  int                   `json:"row_count"`
	Totals    *ledger.TotalsSummary `json:"totals,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// CreateExport records a new pending export run.
func (s *Store) CreateExport(ctx context.Context, format, network string) (*Export, error) {
	id := uuid.New()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO exports (id, filename, format, network)
		VALUES ($1, '', $2, $3)
		RETURNING id, filename, format, network, status, row_count, created_at, updated_at`,
		id, format, network,
	)
	var e Export
	if err := row.Scan(&e.ID, &e.Filename, &e.Format, &e.Network, &e.Status, &e.RowCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, fmt.Errorf("creating export: %w", err)
	}
	return &e, nil
}

// CompleteExport marks an export as completed with its output metadata.
func (s *Store) CompleteExport(ctx context.Context, id uuid.UUID, filename string, rowCount int, totals *ledger.TotalsSummary) error {
	totalsJSON, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("marshaling totals: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE exports
		SET status = $2, filename = $3, row_count = $4, totals = $5, updated_at = now()
		WHERE id = $1`,
		id, ExportStatusCompleted, filename, rowCount, totalsJSON,
	)
	if err != nil {
		return fmt.Errorf("completing export: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailExport marks an export as failed with the error message.
func (s *Store) FailExport(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE exports
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, ExportStatusFailed, errMsg,
	)
	if err != nil {
		return fmt.Errorf("failing export: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetExport retrieves an export by ID.
func (s *Store) GetExport(ctx context.Context, id uuid.UUID) (*Export, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, filename, format, network, status, row_count, totals,
		       COALESCE(error, ''), created_at, updated_at
		FROM exports WHERE id = $1`,
		id,
	)
	return scanExport(row)
}

// ListExports returns exports, newest first.
func (s *Store) ListExports(ctx context.Context, limit int) ([]*Export, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, format, network, status, row_count, totals,
		       COALESCE(error, ''), created_at, updated_at
		FROM exports ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing exports: %w", err)
	}
	defer rows.Close()

	var exports []*Export
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

func scanExport(row pgx.Row) (*Export, error) {
	var e Export
	var totalsJSON []byte
	if err := row.Scan(&e.ID, &e.Filename, &e.Format, &e.Network, &e.Status, &e.RowCount,
		&totalsJSON, &e.Error, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning export: %w", err)
	}
	if len(totalsJSON) > 0 {
		var totals ledger.TotalsSummary
		if err := json.Unmarshal(totalsJSON, &totals); err != nil {
			return nil, fmt.Errorf("unmarshaling export totals: %w", err)
		}
		e.Totals = &totals
	}
	return &e, nil
}

// Invoice statuses.
const (
	InvoiceStatusDraft = "draft"
	InvoiceStatusSent  = "sent"
	InvoiceStatusPaid  = "paid"
	InvoiceStatusVoid  = "void"
)

// LineItem is one billable line on an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is a client invoice, optionally payable to a tracked wallet.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	ClientName     string          `json:"client_name"`
	ClientAddress  string          `json:"client_address,omitempty"`
	ClientEmail    string          `json:"client_email,omitempty"`
	LineItems      []LineItem      `json:"line_items"`
	Currency       string          `json:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
	Status         string          `json:"status"`
	PaymentNetwork string          `json:"payment_network,omitempty"`
	PaymentAddress string          `json:"payment_address,omitempty"`
	Filename       string          `json:"filename,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateInvoiceParams contains the parameters for creating an invoice.
// Subtotal, tax and total are computed by the caller from the line items.
type CreateInvoiceParams struct {
	InvoiceNumber  string
	ClientName     string
	ClientAddress  string
	ClientEmail    string
	LineItems      []LineItem
	Currency       string
	Subtotal       decimal.Decimal
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	PaymentNetwork string
	PaymentAddress string
	Filename       string
	Notes          string
	DueDate        *time.Time
}

// CreateInvoice inserts a new invoice.
func (s *Store) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	itemsJSON, err := json.Marshal(params.LineItems)
	if err != nil {
		return nil, fmt.Errorf("marshaling line items: %w", err)
	}
	if params.Currency == "" {
		params.Currency = "USD"
	}
	id := uuid.New()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO invoices (
			id, invoice_number, client_name, client_address, client_email,
			line_items, currency, subtotal, tax_rate, tax_amount, total,
			payment_network, payment_address, filename, notes, due_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, invoice_number, client_name, client_address, client_email,
		          line_items, currency, subtotal, tax_rate, tax_amount, total,
		          status, payment_network, payment_address, filename, notes,
		          due_date, created_at, updated_at`,
		id, params.InvoiceNumber, params.ClientName, params.ClientAddress, params.ClientEmail,
		itemsJSON, params.Currency, params.Subtotal, params.TaxRate, params.TaxAmount, params.Total,
		params.PaymentNetwork, params.PaymentAddress, params.Filename, params.Notes, params.DueDate,
	)
	return scanInvoice(row)
}

// GetInvoice retrieves an invoice by ID.
func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, invoiceSelect+` WHERE id = $1`, id)
	return scanInvoice(row)
}

// ListInvoices returns invoices, newest first.
func (s *Store) ListInvoices(ctx context.Context, limit int) ([]*Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, invoiceSelect+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateInvoiceStatus transitions an invoice to a new status.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status string) (*Invoice, error) {
	switch status {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusVoid:
	default:
		return nil, fmt.Errorf("invalid invoice status: %s", status)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE invoices SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, invoice_number, client_name, client_address, client_email,
		          line_items, currency, subtotal, tax_rate, tax_amount, total,
		          status, payment_network, payment_address, filename, notes,
		          due_date, created_at, updated_at`,
		id, status,
	)
	return scanInvoice(row)
}

// SetInvoiceFilename records the rendered PDF's filename.
func (s *Store) SetInvoiceFilename(ctx context.Context, id uuid.UUID, filename string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices SET filename = $2, updated_at = now() WHERE id = $1`,
		id, filename,
	)
	if err != nil {
		return fmt.Errorf("setting invoice filename: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInvoice removes an invoice.
func (s *Store) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const invoiceSelect = `
	SELECT id, invoice_number, client_name, client_address, client_email,
	       line_items, currency, subtotal, tax_rate, tax_amount, total,
	       status, payment_network, payment_address, filename, notes,
	       due_date, created_at, updated_at
	FROM invoices`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var itemsJSON []byte
	if err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.ClientName, &inv.ClientAddress, &inv.ClientEmail,
		&itemsJSON, &inv.Currency, &inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Total,
		&inv.Status, &inv.PaymentNetwork, &inv.PaymentAddress, &inv.Filename, &inv.Notes,
		&inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning invoice: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &inv.LineItems); err != nil {
		return nil, fmt.Errorf("unmarshaling line items: %w", err)
	}
	return &inv, nil
}

// NextInvoiceNumber atomically allocates the next sequential invoice number
// for the prefix, formatted like INV-0042.
func (s *Store) NextInvoiceNumber(ctx context.Context, prefix string) (string, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO invoice_counters (prefix, next_number)
		VALUES ($1, 2)
		ON CONFLICT (prefix)
		DO UPDATE SET next_number = invoice_counters.next_number + 1
		RETURNING next_number - 1`,
		prefix,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return "", fmt.Errorf("allocating invoice number: %w", err)
	}
	return fmt.Sprintf("%s-%04d", prefix, n), nil
}

// SenderProfile is the business identity printed on invoices. A single row
// exists per deployment.
type SenderProfile struct {
	Name        string    `json:"name"`
	AddressLine string    `json:"address_line"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Website     string    `json:"website"`
	TaxID       string    `json:"tax_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetSenderProfile retrieves the sender profile. A missing profile returns
// an empty profile, not an error.
func (s *Store) GetSenderProfile(ctx context.Context) (*SenderProfile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, address_line, email, phone, website, tax_id, updated_at
		FROM sender_profile WHERE id = 1`)
	var p SenderProfile
	if err := row.Scan(&p.Name, &p.AddressLine, &p.Email, &p.Phone, &p.Website, &p.TaxID, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &SenderProfile{}, nil
		}
		return nil, fmt.Errorf("getting sender profile: %w", err)
	}
	return &p, nil
}

// UpsertSenderProfile creates or replaces the sender profile.
func (s *Store) UpsertSenderProfile(ctx context.Context, p SenderProfile) (*SenderProfile, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sender_profile (id, name, address_line, email, phone, website, tax_id)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, address_line = EXCLUDED.address_line,
		              email = EXCLUDED.email, phone = EXCLUDED.phone,
		              website = EXCLUDED.website, tax_id = EXCLUDED.tax_id,
		              updated_at = now()
		RETURNING name, address_line, email, phone, website, tax_id, updated_at`,
		p.Name, p.AddressLine, p.Email, p.Phone, p.Website, p.TaxID,
	)
	var out SenderProfile
	if err := row.Scan(&out.Name, &out.AddressLine, &out.Email, &out.Phone, &out.Website, &out.TaxID, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upserting sender profile: %w", err)
	}
	return &out, nil
}
