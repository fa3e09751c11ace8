package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedListing(t *testing.T, repo *MemoryRepository) *models.Listing {
	t.Helper()
	l := &models.Listing{OwnerID: "owner", Title: "Plot", Status: models.ListingAvailable}
	require.NoError(t, repo.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertListing(context.Background(), l)
	}))
	require.NotEmpty(t, l.ID)
	return l
}

func TestMemoryWithTxRestoresOnError(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	l := seedListing(t, repo)

	err := repo.WithTx(ctx, func(tx Tx) error {
		locked, err := tx.LockListing(ctx, l.ID)
		if err != nil {
			return err
		}
		locked.Status = models.ListingBooked
		if err := tx.UpdateListing(ctx, locked); err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, &models.Booking{ListingID: l.ID, TenantID: "t1", Status: models.BookingPending}); err != nil {
			return err
		}
		return apperror.Conflict("changed my mind")
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	reloaded, err := repo.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingAvailable, reloaded.Status)

	bookings, err := repo.ListBookingsByListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestMemoryWithTxWrapsPlainErrors(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.WithTx(context.Background(), func(tx Tx) error {
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, apperror.ErrPersistence)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err = repo.WithTx(ctx, func(tx Tx) error { return nil })
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestMemoryBookingQueries(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	l := seedListing(t, repo)
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	base := time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)

	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		for i, b := range []*models.Booking{
			{ID: "b1", TenantID: "t1", Status: models.BookingRejected},
			{ID: "b2", TenantID: "t1", Status: models.BookingPending},
			{ID: "b3", TenantID: "t2", Status: models.BookingPending},
			{ID: "b4", TenantID: "t3", Status: models.BookingApproved},
		} {
			b.ListingID = l.ID
			b.BookingDate = day
			b.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		n, err := tx.CountActiveBookings(ctx, l.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = tx.CountActiveBookings(ctx, l.ID, "b4")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = tx.CountApprovedBookings(ctx, l.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = tx.CountApprovedBookings(ctx, l.ID, "b4")
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		found, err := tx.FindBookingForDate(ctx, "t1", l.ID, day.Add(5*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "b2", found.ID)

		none, err := tx.FindBookingForDate(ctx, "t1", l.ID, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Nil(t, none)

		rejected, err := tx.RejectPendingSiblings(ctx, l.ID, "b4", "taken", "owner", base)
		require.NoError(t, err)
		assert.Len(t, rejected, 2)
		return nil
	}))

	mine, err := repo.ListBookingsByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "b2", mine[0].ID, "newest first")
	assert.Equal(t, models.BookingRejected, mine[0].Status)
}

func TestMemoryDeleteListingCascades(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	l := seedListing(t, repo)
	slip := "/storage/uploads/slips/a.png"
	doc := "/storage/uploads/contracts/c.pdf"

	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertBooking(ctx, &models.Booking{ID: "b1", ListingID: l.ID, PaymentSlip: &slip}); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, &models.Payment{ID: "p1", BookingID: "b1", SlipImage: slip}); err != nil {
			return err
		}
		return tx.InsertContract(ctx, &models.Contract{ID: "c1", BookingID: "b1", ListingID: l.ID, Document: &doc})
	}))

	var files []string
	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		var err error
		if files, err = tx.ListStoredFiles(ctx, l.ID); err != nil {
			return err
		}
		return tx.DeleteListing(ctx, l.ID)
	}))
	assert.Equal(t, []string{doc, slip}, files)

	_, err := repo.GetPayment(ctx, "p1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = repo.GetContract(ctx, "c1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMemoryFeesAndNotifications(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.WithTx(ctx, func(tx Tx) error {
		fee, err := tx.CurrentFee(ctx)
		require.NoError(t, err)
		assert.Nil(t, fee)

		require.NoError(t, tx.InsertFee(ctx, &models.Fee{AccountName: "old"}))
		require.NoError(t, tx.InsertFee(ctx, &models.Fee{AccountName: "new"}))
		fee, err = tx.CurrentFee(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new", fee.AccountName)

		require.NoError(t, tx.InsertNotification(ctx, &models.Notification{UserID: "u1", Title: "first"}))
		require.NoError(t, tx.InsertNotification(ctx, &models.Notification{UserID: "u2", Title: "other"}))
		return tx.InsertNotification(ctx, &models.Notification{UserID: "u1", Title: "second"})
	}))

	notes, err := repo.ListNotifications(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "second", notes[0].Title)
}
