package service

import (
	"context"
	"strings"

	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/rongwang/land-rental-server/internal/policy"
	"github.com/rongwang/land-rental-server/internal/repository"
)

// ListingRegistry owns listing identity, pricing and availability
type ListingRegistry struct {
	*deps
}

// Create registers a new available listing owned by the actor
func (r *ListingRegistry) Create(ctx context.Context, actor models.Actor, req models.CreateListingRequest) (*models.Listing, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperror.Validation("title is required")
	}
	if err := validatePrice(req.PricePerYear); err != nil {
		return nil, err
	}
	if err := validatePercent("deposit percent", req.DepositPercent); err != nil {
		return nil, err
	}

	now := r.clock()
	listing := &models.Listing{
		OwnerID:        actor.ID,
		Title:          title,
		Status:         models.ListingAvailable,
		PricePerYear:   req.PricePerYear,
		DepositPercent: req.DepositPercent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := r.repo.WithTx(ctx, func(tx repository.Tx) error {
		return tx.InsertListing(ctx, listing)
	})
	r.record(ctx, "listing.create", actor, listing.ID, err, nil)
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// Get returns a listing by id
func (r *ListingRegistry) Get(ctx context.Context, id string) (*models.Listing, error) {
	return r.repo.GetListing(ctx, id)
}

// ListBookings returns every booking on the listing to its owner or an admin
func (r *ListingRegistry) ListBookings(ctx context.Context, actor models.Actor, id string) ([]models.Booking, error) {
	listing, err := r.repo.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanManageListing(actor, listing); err != nil {
		return nil, err
	}
	return r.repo.ListBookingsByListing(ctx, id)
}

// LockForUpdate takes the listing row lock inside tx
func (r *ListingRegistry) LockForUpdate(ctx context.Context, tx repository.Tx, id string) (*models.Listing, error) {
	return tx.LockListing(ctx, id)
}

// TransitionToBooked moves an available listing to booked. It is a no-op on
// an already booked listing and a Conflict on an unavailable one.
func (r *ListingRegistry) TransitionToBooked(ctx context.Context, tx repository.Tx, listing *models.Listing) error {
	if listing.Status == models.ListingBooked {
		return nil
	}
	if err := listing.Status.Transition(models.ListingBooked); err != nil {
		return transitionConflict(err)
	}
	listing.Status = models.ListingBooked
	listing.UpdatedAt = r.clock()
	return tx.UpdateListing(ctx, listing)
}

// TransitionToAvailable frees the listing. It refuses while any booking other
// than excludeBookingID is pending or approved.
func (r *ListingRegistry) TransitionToAvailable(ctx context.Context, tx repository.Tx, listing *models.Listing, excludeBookingID string) error {
	if listing.Status == models.ListingAvailable {
		return nil
	}
	active, err := tx.CountActiveBookings(ctx, listing.ID, excludeBookingID)
	if err != nil {
		return err
	}
	if active > 0 {
		return apperror.Conflict("listing still has %d active booking(s)", active)
	}
	if err := listing.Status.Transition(models.ListingAvailable); err != nil {
		return transitionConflict(err)
	}
	listing.Status = models.ListingAvailable
	listing.UpdatedAt = r.clock()
	return tx.UpdateListing(ctx, listing)
}

// ReleaseIfIdle reverts a booked listing to available when no booking other
// than excludeBookingID is pending or approved. Reject and cancel both use it.
func (r *ListingRegistry) ReleaseIfIdle(ctx context.Context, tx repository.Tx, listing *models.Listing, excludeBookingID string) (bool, error) {
	if listing.Status != models.ListingBooked {
		return false, nil
	}
	active, err := tx.CountActiveBookings(ctx, listing.ID, excludeBookingID)
	if err != nil {
		return false, err
	}
	if active > 0 {
		return false, nil
	}
	listing.Status = models.ListingAvailable
	listing.UpdatedAt = r.clock()
	return true, tx.UpdateListing(ctx, listing)
}

// SetStatus is the direct owner/admin edit. Unknown values are coerced to
// available. Booked can only be reached through the booking flow, and a
// listing with an approved booking can't leave it.
func (r *ListingRegistry) SetStatus(ctx context.Context, actor models.Actor, id, raw string) (*models.Listing, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}

	status, ok := models.ParseListingStatus(strings.TrimSpace(raw))
	if !ok {
		r.logger.WarnContext(ctx, "[listing] unknown status coerced to available",
			"listing_id", id, "actor_id", actor.ID, "requested", raw)
	}
	if status == models.ListingBooked {
		return nil, apperror.Validation("status booked is set by the booking flow only")
	}

	pre, err := r.repo.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanManageListing(actor, pre); err != nil {
		return nil, err
	}

	var listing *models.Listing
	err = r.repo.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		listing, err = r.LockForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := r.guardOwnerEdit(ctx, tx, actor, listing); err != nil {
			return err
		}
		if listing.Status == status {
			return nil
		}
		if err := r.guardApprovedHold(ctx, tx, listing); err != nil {
			return err
		}
		if err := listing.Status.Transition(status); err != nil {
			return transitionConflict(err)
		}
		listing.Status = status
		listing.UpdatedAt = r.clock()
		return tx.UpdateListing(ctx, listing)
	})
	r.record(ctx, "listing.set_status", actor, id, err, map[string]any{"status": string(status), "coerced": !ok})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// UpdateTerms changes price and deposit percent under the same guard as SetStatus
func (r *ListingRegistry) UpdateTerms(ctx context.Context, actor models.Actor, id string, req models.UpdateListingRequest) (*models.Listing, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	if err := validatePrice(req.PricePerYear); err != nil {
		return nil, err
	}
	if err := validatePercent("deposit percent", req.DepositPercent); err != nil {
		return nil, err
	}

	pre, err := r.repo.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanManageListing(actor, pre); err != nil {
		return nil, err
	}

	var listing *models.Listing
	err = r.repo.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		listing, err = r.LockForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := r.guardOwnerEdit(ctx, tx, actor, listing); err != nil {
			return err
		}
		listing.PricePerYear = req.PricePerYear
		listing.DepositPercent = req.DepositPercent
		listing.UpdatedAt = r.clock()
		return tx.UpdateListing(ctx, listing)
	})
	r.record(ctx, "listing.update_terms", actor, id, err, nil)
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// Delete removes an idle listing with its remaining bookings, then removes
// their stored files once the rows are gone.
func (r *ListingRegistry) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := policy.RequireActor(actor); err != nil {
		return err
	}
	pre, err := r.repo.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.CanManageListing(actor, pre); err != nil {
		return err
	}

	var files []string
	err = r.repo.WithTx(ctx, func(tx repository.Tx) error {
		listing, err := r.LockForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := policy.CanManageListing(actor, listing); err != nil {
			return err
		}
		if listing.Status == models.ListingBooked || listing.Status == models.ListingUnavailable {
			return apperror.Conflict("listing is %s and cannot be deleted", listing.Status)
		}
		active, err := tx.CountActiveBookings(ctx, id, "")
		if err != nil {
			return err
		}
		if active > 0 {
			return apperror.Conflict("listing still has %d active booking(s)", active)
		}
		if files, err = tx.ListStoredFiles(ctx, id); err != nil {
			return err
		}
		return tx.DeleteListing(ctx, id)
	})
	r.record(ctx, "listing.delete", actor, id, err, map[string]any{"files": len(files)})
	if err != nil {
		return err
	}

	for _, path := range files {
		if r.storage == nil {
			break
		}
		if err := r.storage.Delete(ctx, path); err != nil {
			r.logger.WarnContext(ctx, "[listing] could not remove stored file", "listing_id", id, "path", path, "error", err)
		}
	}
	return nil
}

// guardApprovedHold keeps a listing booked while it has an approved booking.
// It applies to admins too.
func (r *ListingRegistry) guardApprovedHold(ctx context.Context, tx repository.Tx, listing *models.Listing) error {
	if listing.Status != models.ListingBooked {
		return nil
	}
	approved, err := tx.CountApprovedBookings(ctx, listing.ID, "")
	if err != nil {
		return err
	}
	if approved > 0 {
		return apperror.Conflict("listing has an approved booking and stays booked")
	}
	return nil
}

// guardOwnerEdit blocks owner edits while a booking is pending or approved.
// Admins are not blocked.
func (r *ListingRegistry) guardOwnerEdit(ctx context.Context, tx repository.Tx, actor models.Actor, listing *models.Listing) error {
	if err := policy.CanManageListing(actor, listing); err != nil {
		return err
	}
	if actor.IsAdmin() {
		return nil
	}
	active, err := tx.CountActiveBookings(ctx, listing.ID, "")
	if err != nil {
		return err
	}
	if active > 0 {
		return apperror.Conflict("listing has %d active booking(s) and cannot be edited", active)
	}
	return nil
}
