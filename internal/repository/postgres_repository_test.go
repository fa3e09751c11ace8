package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listingColumns = []string{"id", "owner_id", "title", "status", "price_per_year", "deposit_percent", "created_at", "updated_at"}

var bookingColumns = []string{
	"id", "listing_id", "tenant_id", "booking_date", "deposit_amount", "deposit_policy", "status",
	"payment_status", "payment_slip", "rejection_reason", "decided_by", "created_at", "updated_at",
}

func newMockRepo(t *testing.T, lockTimeout time.Duration) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(sqlx.NewDb(db, "postgres"), lockTimeout), mock
}

func TestWithTxLocksAndCommits(t *testing.T) {
	repo, mock := newMockRepo(t, 5*time.Second)
	now := time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '5000ms'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM listings WHERE id = $1 FOR UPDATE")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows(listingColumns).
			AddRow("l1", "owner", "Plot", "available", "120000", "10", now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE listings SET status = $2")).
		WithArgs("l1", "booked", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		l, err := tx.LockListing(context.Background(), "l1")
		if err != nil {
			return err
		}
		assert.Equal(t, "120000", l.PricePerYear.String())
		l.Status = models.ListingBooked
		return tx.UpdateListing(context.Background(), l)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM listings WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(listingColumns))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockListing(context.Background(), "missing")
		return err
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockTimeoutIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t, 250*time.Millisecond)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '250ms'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM bookings WHERE id = $1 FOR UPDATE")).
		WithArgs("b1").
		WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockBooking(context.Background(), "b1")
		return err
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCanceledLockWaitIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM listings WHERE id = $1 FOR UPDATE")).
		WithArgs("l1").
		WillReturnError(&pq.Error{Code: "57014", Message: "canceling statement due to user request"})
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockListing(context.Background(), "l1")
		return err
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "op"))
	assert.ErrorIs(t, mapError(&pq.Error{Code: "40P01"}, "op"), apperror.ErrConflict)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "57014", Message: "canceling statement due to user request"}, "op"), apperror.ErrConflict)
	assert.ErrorIs(t, mapError(context.DeadlineExceeded, "op"), apperror.ErrConflict)
	assert.ErrorIs(t, mapError(errors.New("connection reset"), "op"), apperror.ErrPersistence)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "23505"}, "op"), apperror.ErrPersistence)

	validation := apperror.Validation("bad")
	assert.Same(t, validation, mapError(validation, "op"))
}

func TestRejectPendingSiblings(t *testing.T) {
	repo, mock := newMockRepo(t, 0)
	now := time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE bookings SET status = 'rejected'")).
		WithArgs("l1", "keep", "taken", "owner", now).
		WillReturnRows(sqlmock.NewRows(bookingColumns).
			AddRow("b2", "l1", "t2", day, "10000", "monthly", "rejected", "waiting", nil, "taken", "owner", now, now).
			AddRow("b3", "l1", "t3", day, "10000", "monthly", "rejected", "waiting", nil, "taken", "owner", now, now))
	mock.ExpectCommit()

	var rejected []models.Booking
	err := repo.WithTx(context.Background(), func(tx Tx) error {
		var err error
		rejected, err = tx.RejectPendingSiblings(context.Background(), "l1", "keep", "taken", "owner", now)
		return err
	})
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	assert.Equal(t, models.BookingRejected, rejected[0].Status)
	require.NotNil(t, rejected[1].RejectionReason)
	assert.Equal(t, "taken", *rejected[1].RejectionReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBookingForDate(t *testing.T) {
	repo, mock := newMockRepo(t, 0)
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM bookings")).
		WithArgs("t1", "l1", "2026-10-16").
		WillReturnRows(sqlmock.NewRows(bookingColumns))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		b, err := tx.FindBookingForDate(context.Background(), "t1", "l1", day)
		assert.Nil(t, b)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetListingNotFound(t *testing.T) {
	repo, mock := newMockRepo(t, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM listings WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(listingColumns))

	_, err := repo.GetListing(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
