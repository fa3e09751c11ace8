package policy

import (
	"testing"

	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/stretchr/testify/assert"
)

var (
	owner    = models.Actor{ID: "owner", Role: models.RoleUser}
	tenant   = models.Actor{ID: "tenant", Role: models.RoleUser}
	stranger = models.Actor{ID: "stranger", Role: models.RoleUser}
	admin    = models.Actor{ID: "admin", Role: models.RoleAdmin}
	nobody   = models.Actor{}
)

func TestListingRules(t *testing.T) {
	listing := &models.Listing{ID: "l1", OwnerID: owner.ID}

	assert.NoError(t, CanManageListing(owner, listing))
	assert.NoError(t, CanManageListing(admin, listing))
	assert.ErrorIs(t, CanManageListing(tenant, listing), apperror.ErrAuthorization)
	assert.ErrorIs(t, CanManageListing(nobody, listing), apperror.ErrAuthorization)

	assert.NoError(t, CanBook(tenant, listing))
	assert.ErrorIs(t, CanBook(owner, listing), apperror.ErrAuthorization)
	assert.ErrorIs(t, CanBook(nobody, listing), apperror.ErrAuthorization)
}

func TestBookingRules(t *testing.T) {
	listing := &models.Listing{ID: "l1", OwnerID: owner.ID}
	booking := &models.Booking{ID: "b1", ListingID: "l1", TenantID: tenant.ID}

	assert.NoError(t, CanActAsTenant(tenant, booking))
	assert.ErrorIs(t, CanActAsTenant(owner, booking), apperror.ErrAuthorization)
	assert.ErrorIs(t, CanActAsTenant(admin, booking), apperror.ErrAuthorization)

	for _, a := range []models.Actor{tenant, owner, admin} {
		assert.NoError(t, CanViewBooking(a, booking, listing), a.ID)
	}
	assert.ErrorIs(t, CanViewBooking(stranger, booking, listing), apperror.ErrAuthorization)
}

func TestContractAndAdminRules(t *testing.T) {
	contract := &models.Contract{ID: "c1", OwnerID: owner.ID, TenantID: tenant.ID}

	assert.NoError(t, CanViewContract(owner, contract))
	assert.NoError(t, CanViewContract(tenant, contract))
	assert.NoError(t, CanViewContract(admin, contract))
	assert.ErrorIs(t, CanViewContract(stranger, contract), apperror.ErrAuthorization)

	assert.NoError(t, RequireAdmin(admin))
	assert.ErrorIs(t, RequireAdmin(owner), apperror.ErrAuthorization)
	assert.ErrorIs(t, RequireActor(nobody), apperror.ErrAuthorization)
}
