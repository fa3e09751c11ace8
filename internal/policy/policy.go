// Package policy holds the authorization rules shared by every core component.
// Each check is a pure function of the actor and the entity it acts on.
package policy

import (
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
)

// RequireActor rejects anonymous callers
func RequireActor(actor models.Actor) error {
	if actor.ID == "" {
		return apperror.Authorization("authentication required")
	}
	return nil
}

// RequireAdmin allows admins only
func RequireAdmin(actor models.Actor) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return apperror.Authorization("admin role required")
	}
	return nil
}

// IsOwner reports whether the actor owns the listing
func IsOwner(actor models.Actor, listing *models.Listing) bool {
	return actor.ID != "" && listing != nil && listing.OwnerID == actor.ID
}

// IsTenant reports whether the actor made the booking
func IsTenant(actor models.Actor, booking *models.Booking) bool {
	return actor.ID != "" && booking != nil && booking.TenantID == actor.ID
}

// CanManageListing allows the listing owner or an admin
func CanManageListing(actor models.Actor, listing *models.Listing) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if actor.IsAdmin() || IsOwner(actor, listing) {
		return nil
	}
	return apperror.Authorization("only the listing owner or an admin may do this")
}

// CanBook rejects owners booking their own listing
func CanBook(actor models.Actor, listing *models.Listing) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if IsOwner(actor, listing) {
		return apperror.Authorization("owners cannot book their own listing")
	}
	return nil
}

// CanActAsTenant allows only the tenant who made the booking
func CanActAsTenant(actor models.Actor, booking *models.Booking) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if !IsTenant(actor, booking) {
		return apperror.Authorization("only the tenant of this booking may do this")
	}
	return nil
}

// CanViewBooking allows the tenant, the listing owner or an admin
func CanViewBooking(actor models.Actor, booking *models.Booking, listing *models.Listing) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if actor.IsAdmin() || IsTenant(actor, booking) || IsOwner(actor, listing) {
		return nil
	}
	return apperror.Authorization("you don't have access to this booking")
}

// CanViewContract allows the contract's tenant, its owner or an admin
func CanViewContract(actor models.Actor, contract *models.Contract) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if actor.IsAdmin() || contract.TenantID == actor.ID || contract.OwnerID == actor.ID {
		return nil
	}
	return apperror.Authorization("you don't have access to this contract")
}
