package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/rongwang/land-rental-server/internal/policy"
	"github.com/rongwang/land-rental-server/internal/repository"
)

const (
	reasonCancelledByTenant = "cancelled by tenant"
	reasonSiblingApproved   = "another booking for this listing was approved"
)

// BookingLedger owns bookings and their approval and payment progress
type BookingLedger struct {
	*deps
	listings *ListingRegistry
}

func bookingLink(id string) string {
	return "/bookings/" + id
}

// Create books listingID for the actor. A retry with the same date while the
// first booking is still pending and unpaid returns that booking unchanged.
func (l *BookingLedger) Create(ctx context.Context, actor models.Actor, listingID string, req models.CreateBookingRequest) (*models.BookingResult, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}

	date, err := ParseCalendarDate(req.BookingDate)
	if err != nil {
		return nil, err
	}
	if !date.After(l.today()) {
		return nil, apperror.Validation("booking date must be after today")
	}
	depositPolicy, ok := models.ParseDepositPolicy(req.DepositPolicy)
	if !ok {
		return nil, apperror.Validation("unknown deposit policy %q", req.DepositPolicy)
	}

	pre, err := l.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanBook(actor, pre); err != nil {
		return nil, err
	}

	var result *models.BookingResult
	err = l.repo.WithTx(ctx, func(tx repository.Tx) error {
		listing, err := l.listings.LockForUpdate(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if err := policy.CanBook(actor, listing); err != nil {
			return err
		}
		if listing.Status == models.ListingUnavailable {
			return apperror.Conflict("listing is not open for booking")
		}

		existing, err := tx.FindBookingForDate(ctx, actor.ID, listingID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == models.BookingPending && existing.PaymentStatus == models.PaymentWaiting {
				result = &models.BookingResult{Booking: existing, Existing: true}
				return nil
			}
			return apperror.Conflict("you already have a booking for this listing on %s", repository.DateKey(date))
		}

		if listing.Status != models.ListingAvailable {
			return apperror.Conflict("listing is already booked")
		}

		deposit, err := DepositFor(depositPolicy, listing.PricePerYear, listing.DepositPercent)
		if err != nil {
			return err
		}

		now := l.clock()
		booking := &models.Booking{
			ListingID:     listing.ID,
			TenantID:      actor.ID,
			BookingDate:   date,
			DepositAmount: deposit,
			DepositPolicy: depositPolicy,
			Status:        models.BookingPending,
			PaymentStatus: models.PaymentWaiting,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}
		if err := l.listings.TransitionToBooked(ctx, tx, listing); err != nil {
			return err
		}
		if err := notify(ctx, tx, now, listing.OwnerID, "booking", "New booking request",
			fmt.Sprintf("%s was requested for %s", listing.Title, repository.DateKey(date)),
			bookingLink(booking.ID)); err != nil {
			return err
		}

		result = &models.BookingResult{Booking: booking}
		return nil
	})

	entityID := listingID
	fields := map[string]any{"listing_id": listingID}
	if result != nil {
		entityID = result.Booking.ID
		fields["existing"] = result.Existing
	}
	l.record(ctx, "booking.create", actor, entityID, err, fields)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Decide dispatches an approve or reject action
func (l *BookingLedger) Decide(ctx context.Context, actor models.Actor, bookingID string, req models.DecisionRequest) (*models.Booking, error) {
	switch req.Action {
	case "approve":
		return l.Approve(ctx, actor, bookingID)
	case "reject":
		return l.Reject(ctx, actor, bookingID, req.Reason)
	}
	return nil, apperror.Validation("action must be approve or reject")
}

// preloadForOwner reads the booking and its listing without locks and checks
// that the actor may decide on it
func (l *BookingLedger) preloadForOwner(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	booking, err := l.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	listing, err := l.repo.GetListing(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanManageListing(actor, listing); err != nil {
		return nil, err
	}
	return booking, nil
}

// lockPair locks the listing and then the booking
func (l *BookingLedger) lockPair(ctx context.Context, tx repository.Tx, listingID, bookingID string) (*models.Listing, *models.Booking, error) {
	listing, err := l.listings.LockForUpdate(ctx, tx, listingID)
	if err != nil {
		return nil, nil, err
	}
	booking, err := tx.LockBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking.ListingID != listing.ID {
		return nil, nil, apperror.Conflict("booking moved to another listing, please retry")
	}
	return listing, booking, nil
}

// Approve accepts a pending booking that carries a deposit slip, keeps the
// listing booked and rejects every other pending booking on it.
func (l *BookingLedger) Approve(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	pre, err := l.preloadForOwner(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}

	var booking *models.Booking
	var rejected []models.Booking
	err = l.repo.WithTx(ctx, func(tx repository.Tx) error {
		listing, b, err := l.lockPair(ctx, tx, pre.ListingID, bookingID)
		if err != nil {
			return err
		}
		if err := policy.CanManageListing(actor, listing); err != nil {
			return err
		}
		if err := b.Status.Transition(models.BookingApproved); err != nil {
			return transitionConflict(err)
		}
		if !b.HasSlip() {
			return apperror.Conflict("the deposit slip has not been submitted yet")
		}
		approved, err := tx.CountApprovedBookings(ctx, listing.ID, b.ID)
		if err != nil {
			return err
		}
		if approved > 0 {
			return apperror.Conflict("listing %s already has an approved booking", listing.ID)
		}

		now := l.clock()
		b.Status = models.BookingApproved
		b.DecidedBy = &actor.ID
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if err := l.listings.TransitionToBooked(ctx, tx, listing); err != nil {
			return err
		}

		rejected, err = tx.RejectPendingSiblings(ctx, listing.ID, b.ID, reasonSiblingApproved, actor.ID, now)
		if err != nil {
			return err
		}

		if err := notify(ctx, tx, now, b.TenantID, "booking", "Booking approved",
			fmt.Sprintf("Your booking for %s on %s was approved", listing.Title, repository.DateKey(b.BookingDate)),
			bookingLink(b.ID)); err != nil {
			return err
		}
		for _, s := range rejected {
			if err := notify(ctx, tx, now, s.TenantID, "booking", "Booking rejected",
				fmt.Sprintf("Your booking for %s was rejected: %s", listing.Title, reasonSiblingApproved),
				bookingLink(s.ID)); err != nil {
				return err
			}
		}

		booking = b
		return nil
	})
	l.record(ctx, "booking.approve", actor, bookingID, err, map[string]any{"rejected_siblings": len(rejected)})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Reject declines a pending booking; reason is mandatory
func (l *BookingLedger) Reject(ctx context.Context, actor models.Actor, bookingID, reason string) (*models.Booking, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("a reason is required to reject a booking")
	}
	pre, err := l.preloadForOwner(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}

	var booking *models.Booking
	var released bool
	err = l.repo.WithTx(ctx, func(tx repository.Tx) error {
		listing, b, err := l.lockPair(ctx, tx, pre.ListingID, bookingID)
		if err != nil {
			return err
		}
		if err := policy.CanManageListing(actor, listing); err != nil {
			return err
		}
		if err := l.close(ctx, tx, b, actor, reason); err != nil {
			return err
		}
		if released, err = l.listings.ReleaseIfIdle(ctx, tx, listing, b.ID); err != nil {
			return err
		}
		if err := notify(ctx, tx, b.UpdatedAt, b.TenantID, "booking", "Booking rejected",
			fmt.Sprintf("Your booking for %s was rejected: %s", listing.Title, reason),
			bookingLink(b.ID)); err != nil {
			return err
		}
		booking = b
		return nil
	})
	l.record(ctx, "booking.reject", actor, bookingID, err, map[string]any{"listing_released": released})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Cancel lets the tenant withdraw a pending booking
func (l *BookingLedger) Cancel(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	pre, err := l.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanActAsTenant(actor, pre); err != nil {
		return nil, err
	}

	var booking *models.Booking
	var released bool
	err = l.repo.WithTx(ctx, func(tx repository.Tx) error {
		listing, b, err := l.lockPair(ctx, tx, pre.ListingID, bookingID)
		if err != nil {
			return err
		}
		if err := policy.CanActAsTenant(actor, b); err != nil {
			return err
		}
		if err := l.close(ctx, tx, b, actor, reasonCancelledByTenant); err != nil {
			return err
		}
		if released, err = l.listings.ReleaseIfIdle(ctx, tx, listing, b.ID); err != nil {
			return err
		}
		if err := notify(ctx, tx, b.UpdatedAt, listing.OwnerID, "booking", "Booking cancelled",
			fmt.Sprintf("The booking for %s on %s was cancelled by the tenant", listing.Title, repository.DateKey(b.BookingDate)),
			bookingLink(b.ID)); err != nil {
			return err
		}
		booking = b
		return nil
	})
	l.record(ctx, "booking.cancel", actor, bookingID, err, map[string]any{"listing_released": released})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// close moves a pending booking to rejected
func (l *BookingLedger) close(ctx context.Context, tx repository.Tx, b *models.Booking, actor models.Actor, reason string) error {
	if err := b.Status.Transition(models.BookingRejected); err != nil {
		return transitionConflict(err)
	}
	b.Status = models.BookingRejected
	b.RejectionReason = &reason
	b.DecidedBy = &actor.ID
	b.UpdatedAt = l.clock()
	return tx.UpdateBooking(ctx, b)
}

// Get returns a booking to its tenant, the listing owner or an admin
func (l *BookingLedger) Get(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	booking, err := l.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	listing, err := l.repo.GetListing(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanViewBooking(actor, booking, listing); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListMine returns the actor's own bookings, newest first
func (l *BookingLedger) ListMine(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	return l.repo.ListBookingsByTenant(ctx, actor.ID)
}
