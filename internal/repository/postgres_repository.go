package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
)

// PostgreSQL error codes that mean "someone else holds the row, try again".
// query_canceled is what a lock wait reports when the request deadline cancels it.
const (
	pqLockNotAvailable = "55P03"
	pqDeadlockDetected = "40P01"
	pqQueryCanceled    = "57014"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository.
// lockTimeout bounds every row-lock wait; zero leaves the server default.
func NewPostgresRepository(db *sqlx.DB, lockTimeout time.Duration) *PostgresRepository {
	return &PostgresRepository{
		db:          db,
		lockTimeout: lockTimeout,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx runs fn in a transaction and commits when fn returns nil
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapError(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if r.lockTimeout > 0 {
		// SET does not take bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return mapError(err, "set lock timeout")
		}
	}

	if err = fn(&postgresTx{tx: tx}); err != nil {
		return mapError(err, "transaction")
	}

	if err = tx.Commit(); err != nil {
		return mapError(err, "commit")
	}
	return nil
}

// mapError turns driver errors into the application taxonomy
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqLockNotAvailable, pqDeadlockDetected, pqQueryCanceled:
			return &apperror.Error{
				Kind:    apperror.KindConflict,
				Message: "the record is being changed by another request, please retry",
				Err:     err,
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &apperror.Error{Kind: apperror.KindConflict, Message: "the request timed out, please retry", Err: err}
	}

	return apperror.Persistence(err, "%s failed", op)
}

func getOne[T any](ctx context.Context, q sqlx.QueryerContext, what, id, query string, args ...interface{}) (*T, error) {
	var out T
	if err := sqlx.GetContext(ctx, q, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("%s %s not found", what, id)
		}
		return nil, mapError(err, "load "+what)
	}
	return &out, nil
}

func findOne[T any](ctx context.Context, q sqlx.QueryerContext, what, query string, args ...interface{}) (*T, error) {
	var out T
	if err := sqlx.GetContext(ctx, q, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err, "find "+what)
	}
	return &out, nil
}

// Read methods
func (r *PostgresRepository) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	return getOne[models.Listing](ctx, r.db, "listing", id, `SELECT * FROM listings WHERE id = $1`, id)
}

func (r *PostgresRepository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getOne[models.Booking](ctx, r.db, "booking", id, `SELECT * FROM bookings WHERE id = $1`, id)
}

func (r *PostgresRepository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return getOne[models.Payment](ctx, r.db, "payment", id, `SELECT * FROM payments WHERE id = $1`, id)
}

func (r *PostgresRepository) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	return getOne[models.Contract](ctx, r.db, "contract", id, `SELECT * FROM contracts WHERE id = $1`, id)
}

func (r *PostgresRepository) ListBookingsByListing(ctx context.Context, listingID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.SelectContext(ctx, &bookings,
		`SELECT * FROM bookings WHERE listing_id = $1 ORDER BY created_at ASC`, listingID)
	if err != nil {
		return nil, mapError(err, "list bookings")
	}
	return bookings, nil
}

func (r *PostgresRepository) ListBookingsByTenant(ctx context.Context, tenantID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.SelectContext(ctx, &bookings,
		`SELECT * FROM bookings WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, mapError(err, "list bookings")
	}
	return bookings, nil
}

func (r *PostgresRepository) ListPaymentsByStatus(ctx context.Context, status models.VerificationStatus) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.SelectContext(ctx, &payments,
		`SELECT * FROM payments WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, mapError(err, "list payments")
	}
	return payments, nil
}

func (r *PostgresRepository) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.SelectContext(ctx, &notifications,
		`SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapError(err, "list notifications")
	}
	return notifications, nil
}

// postgresTx implements Tx on top of one *sqlx.Tx
type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) exec(ctx context.Context, op, query string, args ...interface{}) error {
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return mapError(err, op)
	}
	return nil
}

// Listing statements
func (t *postgresTx) LockListing(ctx context.Context, id string) (*models.Listing, error) {
	return getOne[models.Listing](ctx, t.tx, "listing", id, `SELECT * FROM listings WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) InsertListing(ctx context.Context, l *models.Listing) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	query := `
		INSERT INTO listings (id, owner_id, title, status, price_per_year, deposit_percent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	return t.exec(ctx, "insert listing", query,
		l.ID, l.OwnerID, l.Title, l.Status, l.PricePerYear, l.DepositPercent, l.CreatedAt, l.UpdatedAt)
}

func (t *postgresTx) UpdateListing(ctx context.Context, l *models.Listing) error {
	query := `
		UPDATE listings SET status = $2, price_per_year = $3, deposit_percent = $4, updated_at = $5
		WHERE id = $1
	`
	return t.exec(ctx, "update listing", query, l.ID, l.Status, l.PricePerYear, l.DepositPercent, l.UpdatedAt)
}

func (t *postgresTx) DeleteListing(ctx context.Context, id string) error {
	// Delete dependents first so the order does not depend on ON DELETE rules
	stmts := []string{
		`DELETE FROM payments WHERE booking_id IN (SELECT id FROM bookings WHERE listing_id = $1)`,
		`DELETE FROM contracts WHERE listing_id = $1`,
		`DELETE FROM bookings WHERE listing_id = $1`,
		`DELETE FROM listings WHERE id = $1`,
	}
	for _, stmt := range stmts {
		if err := t.exec(ctx, "delete listing", stmt, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *postgresTx) ListStoredFiles(ctx context.Context, listingID string) ([]string, error) {
	query := `
		SELECT payment_slip FROM bookings WHERE listing_id = $1 AND payment_slip IS NOT NULL
		UNION
		SELECT p.slip_image FROM payments p JOIN bookings b ON b.id = p.booking_id WHERE b.listing_id = $1
		UNION
		SELECT document FROM contracts WHERE listing_id = $1 AND document IS NOT NULL
	`
	var paths []string
	if err := t.tx.SelectContext(ctx, &paths, query, listingID); err != nil {
		return nil, mapError(err, "list stored files")
	}
	return paths, nil
}

// Booking statements
func (t *postgresTx) LockBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getOne[models.Booking](ctx, t.tx, "booking", id, `SELECT * FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) CountActiveBookings(ctx context.Context, listingID, excludeID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE listing_id = $1 AND id <> $2 AND status IN ('pending', 'approved')
	`
	var n int
	if err := t.tx.GetContext(ctx, &n, query, listingID, excludeID); err != nil {
		return 0, mapError(err, "count active bookings")
	}
	return n, nil
}

func (t *postgresTx) CountApprovedBookings(ctx context.Context, listingID, excludeID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE listing_id = $1 AND id <> $2 AND status = 'approved'
	`
	var n int
	if err := t.tx.GetContext(ctx, &n, query, listingID, excludeID); err != nil {
		return 0, mapError(err, "count approved bookings")
	}
	return n, nil
}

func (t *postgresTx) FindBookingForDate(ctx context.Context, tenantID, listingID string, date time.Time) (*models.Booking, error) {
	query := `
		SELECT * FROM bookings
		WHERE tenant_id = $1 AND listing_id = $2 AND booking_date = $3 AND status <> 'rejected'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE
	`
	return findOne[models.Booking](ctx, t.tx, "booking", query, tenantID, listingID, DateKey(date))
}

func (t *postgresTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	query := `
		INSERT INTO bookings (id, listing_id, tenant_id, booking_date, deposit_amount, deposit_policy,
			status, payment_status, payment_slip, rejection_reason, decided_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	return t.exec(ctx, "insert booking", query,
		b.ID, b.ListingID, b.TenantID, DateKey(b.BookingDate), b.DepositAmount, b.DepositPolicy,
		b.Status, b.PaymentStatus, b.PaymentSlip, b.RejectionReason, b.DecidedBy, b.CreatedAt, b.UpdatedAt)
}

func (t *postgresTx) UpdateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		UPDATE bookings SET status = $2, payment_status = $3, payment_slip = $4,
			rejection_reason = $5, decided_by = $6, updated_at = $7
		WHERE id = $1
	`
	return t.exec(ctx, "update booking", query,
		b.ID, b.Status, b.PaymentStatus, b.PaymentSlip, b.RejectionReason, b.DecidedBy, b.UpdatedAt)
}

func (t *postgresTx) RejectPendingSiblings(
	ctx context.Context,
	listingID, keepID, reason, decidedBy string,
	at time.Time,
) ([]models.Booking, error) {
	query := `
		UPDATE bookings SET status = 'rejected', rejection_reason = $3, decided_by = $4, updated_at = $5
		WHERE listing_id = $1 AND id <> $2 AND status = 'pending'
		RETURNING *
	`
	var rejected []models.Booking
	if err := t.tx.SelectContext(ctx, &rejected, query, listingID, keepID, reason, decidedBy, at); err != nil {
		return nil, mapError(err, "reject sibling bookings")
	}
	return rejected, nil
}

// Payment statements
func (t *postgresTx) LockPayment(ctx context.Context, id string) (*models.Payment, error) {
	return getOne[models.Payment](ctx, t.tx, "payment", id, `SELECT * FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) FindOpenPayment(ctx context.Context, bookingID string, paymentType models.PaymentType) (*models.Payment, error) {
	query := `
		SELECT * FROM payments
		WHERE booking_id = $1 AND type = $2 AND status IN ('pending', 'confirmed')
		ORDER BY created_at ASC
		LIMIT 1
	`
	return findOne[models.Payment](ctx, t.tx, "payment", query, bookingID, paymentType)
}

func (t *postgresTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO payments (id, booking_id, contract_id, payer_id, type, amount, fee_rate, net_amount,
			status, slip_image, verified_by, verified_at, rejection_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	return t.exec(ctx, "insert payment", query,
		p.ID, p.BookingID, p.ContractID, p.PayerID, p.Type, p.Amount, p.FeeRate, p.NetAmount,
		p.Status, p.SlipImage, p.VerifiedBy, p.VerifiedAt, p.RejectionReason, p.CreatedAt)
}

func (t *postgresTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE payments SET status = $2, verified_by = $3, verified_at = $4, rejection_reason = $5
		WHERE id = $1
	`
	return t.exec(ctx, "update payment", query, p.ID, p.Status, p.VerifiedBy, p.VerifiedAt, p.RejectionReason)
}

// Contract statements
func (t *postgresTx) LockContract(ctx context.Context, id string) (*models.Contract, error) {
	return getOne[models.Contract](ctx, t.tx, "contract", id, `SELECT * FROM contracts WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) FindContractByBooking(ctx context.Context, bookingID string) (*models.Contract, error) {
	query := `SELECT * FROM contracts WHERE booking_id = $1 ORDER BY created_at ASC LIMIT 1`
	return findOne[models.Contract](ctx, t.tx, "contract", query, bookingID)
}

func (t *postgresTx) InsertContract(ctx context.Context, c *models.Contract) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	query := `
		INSERT INTO contracts (id, booking_id, listing_id, tenant_id, owner_id, contract_number,
			start_date, end_date, price_per_year, deposit_amount, monthly_rent, fee_rate, terms,
			document, status, issued_by, created_at, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	return t.exec(ctx, "insert contract", query,
		c.ID, c.BookingID, c.ListingID, c.TenantID, c.OwnerID, c.ContractNumber,
		DateKey(c.StartDate), DateKey(c.EndDate), c.PricePerYear, c.DepositAmount, c.MonthlyRent, c.FeeRate,
		c.Terms, c.Document, c.Status, c.IssuedBy, c.CreatedAt, c.SignedAt)
}

func (t *postgresTx) UpdateContract(ctx context.Context, c *models.Contract) error {
	query := `UPDATE contracts SET document = $2, status = $3, signed_at = $4 WHERE id = $1`
	return t.exec(ctx, "update contract", query, c.ID, c.Document, c.Status, c.SignedAt)
}

// Fee and notification statements
func (t *postgresTx) CurrentFee(ctx context.Context) (*models.Fee, error) {
	return findOne[models.Fee](ctx, t.tx, "fee", `SELECT * FROM fees ORDER BY created_at DESC LIMIT 1`)
}

func (t *postgresTx) InsertFee(ctx context.Context, f *models.Fee) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	query := `
		INSERT INTO fees (id, rate, account_number, account_name, bank_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	return t.exec(ctx, "insert fee", query, f.ID, f.Rate, f.AccountNumber, f.AccountName, f.BankName, f.CreatedAt)
}

func (t *postgresTx) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	query := `
		INSERT INTO notifications (id, user_id, type, title, message, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	return t.exec(ctx, "insert notification", query, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Link, n.CreatedAt)
}
