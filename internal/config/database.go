package config

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate creates the tables if they don't exist
func Migrate(db *sqlx.DB, logger *slog.Logger) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			// Indexes speed up sibling scans but are not required for correctness
			logger.Warn("[config] failed to create index", "statement", idx, "error", err)
		}
	}

	return nil
}

// contracts.booking_id is deliberately not unique: one contract per booking is
// enforced by a look-up under the booking row lock.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id VARCHAR(36) PRIMARY KEY,
		owner_id VARCHAR(36) NOT NULL,
		title VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'available'
			CHECK (status IN ('available', 'booked', 'unavailable')),
		price_per_year NUMERIC(12, 2) NOT NULL CHECK (price_per_year > 0),
		deposit_percent NUMERIC(5, 2) NOT NULL DEFAULT 0
			CHECK (deposit_percent >= 0 AND deposit_percent <= 100),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id VARCHAR(36) PRIMARY KEY,
		listing_id VARCHAR(36) NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		tenant_id VARCHAR(36) NOT NULL,
		booking_date DATE NOT NULL,
		deposit_amount NUMERIC(12, 2) NOT NULL,
		deposit_policy VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'approved', 'rejected')),
		payment_status VARCHAR(16) NOT NULL DEFAULT 'waiting'
			CHECK (payment_status IN ('waiting', 'deposit_success', 'full_paid')),
		payment_slip VARCHAR(512),
		rejection_reason TEXT,
		decided_by VARCHAR(36),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id VARCHAR(36) PRIMARY KEY,
		booking_id VARCHAR(36) NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		listing_id VARCHAR(36) NOT NULL,
		tenant_id VARCHAR(36) NOT NULL,
		owner_id VARCHAR(36) NOT NULL,
		contract_number VARCHAR(32) NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		price_per_year NUMERIC(12, 2) NOT NULL,
		deposit_amount NUMERIC(12, 2) NOT NULL,
		monthly_rent NUMERIC(12, 2) NOT NULL,
		fee_rate NUMERIC(5, 2) NOT NULL DEFAULT 0,
		terms TEXT NOT NULL DEFAULT '',
		document VARCHAR(512),
		status VARCHAR(24) NOT NULL DEFAULT 'waiting_signature'
			CHECK (status IN ('waiting_signature', 'active')),
		issued_by VARCHAR(36) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		signed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id VARCHAR(36) PRIMARY KEY,
		booking_id VARCHAR(36) NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		contract_id VARCHAR(36) REFERENCES contracts(id) ON DELETE CASCADE,
		payer_id VARCHAR(36) NOT NULL,
		type VARCHAR(16) NOT NULL CHECK (type IN ('deposit', 'full_payment', 'monthly_rent')),
		amount NUMERIC(12, 2) NOT NULL,
		fee_rate NUMERIC(5, 2) NOT NULL DEFAULT 0,
		net_amount NUMERIC(12, 2) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'confirmed', 'rejected')),
		slip_image VARCHAR(512) NOT NULL,
		verified_by VARCHAR(36),
		verified_at TIMESTAMP,
		rejection_reason TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fees (
		id VARCHAR(36) PRIMARY KEY,
		rate NUMERIC(5, 2) NOT NULL CHECK (rate >= 0 AND rate <= 100),
		account_number VARCHAR(64) NOT NULL,
		account_name VARCHAR(255) NOT NULL,
		bank_name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL,
		type VARCHAR(16) NOT NULL,
		title VARCHAR(255) NOT NULL,
		message TEXT NOT NULL,
		link VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_bookings_listing_status ON bookings(listing_id, status)",
	"CREATE INDEX IF NOT EXISTS idx_bookings_tenant_listing_date ON bookings(tenant_id, listing_id, booking_date)",
	"CREATE INDEX IF NOT EXISTS idx_payments_booking ON payments(booking_id)",
	"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)",
	"CREATE INDEX IF NOT EXISTS idx_contracts_booking ON contracts(booking_id)",
	"CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)",
}
