package db

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestStore wraps a Store with test cleanup functionality.
type TestStore struct {
	*Store
	pool *pgxpool.Pool
}

// NewTestStore creates a Store connected to the test database named by
// TEST_DATABASE_URL, running migrations first. Tests are skipped when the
// variable is unset so the suite passes without a database.
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("failed to ping test database: %v", err)
	}

	return &TestStore{Store: NewStore(pool), pool: pool}
}

// Close closes the database connection pool.
func (ts *TestStore) Close() {
	ts.pool.Close()
}

// Cleanup truncates all tables so each test starts from an empty database.
func (ts *TestStore) Cleanup(t *testing.T) {
	t.Helper()
	_, err := ts.pool.Exec(context.Background(), `
		TRUNCATE wallets, category_overrides, exports, invoices,
		         invoice_counters, sender_profile`)
	if err != nil {
		t.Fatalf("failed to clean up test database: %v", err)
	}
}
