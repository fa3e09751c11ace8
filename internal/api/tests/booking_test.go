package api_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rongwang/land-rental-server/internal/api/testutils"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomorrow = "2026-10-16"

func bookingPath(listingID string) string {
	return fmt.Sprintf("/api/listings/%s/bookings", listingID)
}

func TestCreateBooking(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	listing := testCtx.CreateListing(t, 120000)
	tenant := testutils.AuthHeaders(testCtx.Token(t, testutils.TenantID))

	// Test case 1: Successful booking
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow}, tenant)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.BookingResult
	result := testutils.DecodeResult(t, w, &created)
	assert.True(t, result.Success)
	assert.False(t, created.Existing)
	assert.Equal(t, models.BookingPending, created.Booking.Status)
	assert.Equal(t, models.PaymentWaiting, created.Booking.PaymentStatus)
	assert.True(t, decimal.NewFromInt(10000).Equal(created.Booking.DepositAmount))

	// Test case 2: Retrying the same date returns the same booking
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow}, tenant)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var retried models.BookingResult
	testutils.DecodeResult(t, w, &retried)
	assert.True(t, retried.Existing)
	assert.Equal(t, created.Booking.ID, retried.Booking.ID)

	// Test case 3: Unauthorized request (no token)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 4: Unknown listing
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath("missing"),
		models.CreateBookingRequest{BookingDate: tomorrow}, tenant)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBookingValidation(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	listing := testCtx.CreateListing(t, 120000)
	tenant := testutils.AuthHeaders(testCtx.Token(t, testutils.TenantID))

	tests := []struct {
		name string
		date string
	}{
		{"impossible date", "2027-02-30"},
		{"today", "2026-10-15"},
		{"past", "2025-01-01"},
		{"wrong format", "16/10/2026"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
				models.CreateBookingRequest{BookingDate: tt.date}, tenant)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			result := testutils.DecodeResult(t, w, nil)
			assert.False(t, result.Success)
			assert.Equal(t, "VALIDATION_ERROR", result.Code)
		})
	}

	// owners can't book their own listing
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow},
		testutils.AuthHeaders(testCtx.Token(t, testutils.OwnerID)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// nothing was written by the refused attempts
	bookings, err := testCtx.Repository.ListBookingsByListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestSecondTenantIsRefusedWhileBooked(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	listing := testCtx.CreateListing(t, 120000)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow},
		testutils.AuthHeaders(testCtx.Token(t, testutils.TenantID)))
	require.Equal(t, http.StatusCreated, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow},
		testutils.AuthHeaders(testCtx.Token(t, testutils.Tenant2ID)))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", testutils.DecodeResult(t, w, nil).Code)
}

func TestBookingLifecycle(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	listing := testCtx.CreateListing(t, 120000)
	owner := testutils.AuthHeaders(testCtx.Token(t, testutils.OwnerID))
	tenant := testutils.AuthHeaders(testCtx.Token(t, testutils.TenantID))
	admin := testutils.AuthHeaders(testCtx.Token(t, testutils.AdminID))

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/fees", models.SetFeeRequest{
		Rate:          decimal.NewFromInt(5),
		AccountNumber: "123-4-56789-0",
		AccountName:   "Land Rental Co.",
		BankName:      "Kasikorn",
	}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow}, tenant)
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.BookingResult
	testutils.DecodeResult(t, w, &created)
	bookingID := created.Booking.ID

	// approval needs a slip first
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/bookings/"+bookingID+"/decision",
		models.DecisionRequest{Action: "approve"}, owner)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Upload the deposit slip
	w = testutils.PerformMultipart(testCtx.Router, "/api/bookings/"+bookingID+"/slip", nil,
		[]testutils.FormFile{{Field: "slip_file", Filename: "slip.png", Data: testutils.PNG(t)}}, tenant)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var slipped models.Booking
	testutils.DecodeResult(t, w, &slipped)
	assert.Equal(t, models.PaymentDepositSuccess, slipped.PaymentStatus)
	require.NotNil(t, slipped.PaymentSlip)
	_, err := os.Stat(filepath.Join(testCtx.StorageRoot, *slipped.PaymentSlip))
	assert.NoError(t, err, "slip should be published under the public prefix")

	// Approve
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/bookings/"+bookingID+"/decision",
		models.DecisionRequest{Action: "approve"}, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approved models.Booking
	testutils.DecodeResult(t, w, &approved)
	assert.Equal(t, models.BookingApproved, approved.Status)

	// Issue the contract without an uploaded document
	w = testutils.PerformMultipart(testCtx.Router, "/api/bookings/"+bookingID+"/contract",
		map[string]string{"terms": "No burning of crop residue"}, nil, owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var contract models.Contract
	testutils.DecodeResult(t, w, &contract)
	assert.Equal(t, "2026-10-15", contract.StartDate.Format("2006-01-02"))
	assert.Equal(t, "2027-10-15", contract.EndDate.Format("2006-01-02"))
	assert.True(t, decimal.NewFromInt(120000).Equal(contract.PricePerYear))
	assert.True(t, decimal.NewFromInt(5).Equal(contract.FeeRate))

	// a second issue for the same booking conflicts
	w = testutils.PerformMultipart(testCtx.Router, "/api/bookings/"+bookingID+"/contract", nil, nil, owner)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The summary PDF is rendered on first download and then reused
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/contracts/"+contract.ID+"/document", nil, tenant)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var doc models.ContractDocument
	testutils.DecodeResult(t, w, &doc)
	assert.True(t, doc.Generated)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/contracts/"+contract.ID+"/document", nil, owner)
	require.Equal(t, http.StatusOK, w.Code)
	var again models.ContractDocument
	testutils.DecodeResult(t, w, &again)
	assert.False(t, again.Generated)
	assert.Equal(t, doc.Path, again.Path)

	// Pay the balance
	w = testutils.PerformMultipart(testCtx.Router, "/api/contracts/"+contract.ID+"/payments",
		map[string]string{"type": "full_payment"},
		[]testutils.FormFile{{Field: "slip_file", Filename: "balance.png", Data: testutils.PNG(t)}}, tenant)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var payment models.Payment
	testutils.DecodeResult(t, w, &payment)
	assert.True(t, decimal.NewFromInt(110000).Equal(payment.Amount))
	assert.True(t, decimal.NewFromInt(104500).Equal(payment.NetAmount))

	// Admin confirms, twice
	for i := 0; i < 2; i++ {
		w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/payments/"+payment.ID+"/decision",
			models.DecisionRequest{Action: "approve"}, admin)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// the opposite decision is refused
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/payments/"+payment.ID+"/decision",
		models.DecisionRequest{Action: "reject", Reason: "blurry"}, admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/bookings/"+bookingID, nil, tenant)
	require.Equal(t, http.StatusOK, w.Code)
	var final models.Booking
	testutils.DecodeResult(t, w, &final)
	assert.Equal(t, models.PaymentFullPaid, final.PaymentStatus)

	// Admin activates the contract
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/contracts/"+contract.ID+"/activate", nil, owner)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/contracts/"+contract.ID+"/activate", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)

	// the tenant was told about each step
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/notifications", nil, tenant)
	require.Equal(t, http.StatusOK, w.Code)
	var notes []models.Notification
	testutils.DecodeResult(t, w, &notes)
	assert.GreaterOrEqual(t, len(notes), 4)
}

func TestSlipRejectsNonImage(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	listing := testCtx.CreateListing(t, 120000)
	tenant := testutils.AuthHeaders(testCtx.Token(t, testutils.TenantID))

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow}, tenant)
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.BookingResult
	testutils.DecodeResult(t, w, &created)

	w = testutils.PerformMultipart(testCtx.Router, "/api/bookings/"+created.Booking.ID+"/slip", nil,
		[]testutils.FormFile{{Field: "slip_file", Filename: "slip.jpg", Data: []byte("definitely not a jpeg")}}, tenant)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformMultipart(testCtx.Router, "/api/bookings/"+created.Booking.ID+"/slip", nil, nil, tenant)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/bookings/"+created.Booking.ID, nil, tenant)
	var booking models.Booking
	testutils.DecodeResult(t, w, &booking)
	assert.Equal(t, models.PaymentWaiting, booking.PaymentStatus)
	assert.Nil(t, booking.PaymentSlip)

	// nothing was left behind in the upload directory
	entries, err := os.ReadDir(filepath.Join(testCtx.StorageRoot, "storage", "uploads", "slips"))
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestRejectAndCancelReleaseListing(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	listing := testCtx.CreateListing(t, 120000)
	owner := testutils.AuthHeaders(testCtx.Token(t, testutils.OwnerID))
	tenant := testutils.AuthHeaders(testCtx.Token(t, testutils.TenantID))

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow}, tenant)
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.BookingResult
	testutils.DecodeResult(t, w, &created)

	// a reason is required
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/bookings/"+created.Booking.ID+"/decision",
		models.DecisionRequest{Action: "reject"}, owner)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// only the owner may decide
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/bookings/"+created.Booking.ID+"/decision",
		models.DecisionRequest{Action: "reject", Reason: "no"}, tenant)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/bookings/"+created.Booking.ID+"/decision",
		models.DecisionRequest{Action: "reject", Reason: "field is flooded"}, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/listings/"+listing.ID, nil, tenant)
	var reloaded models.Listing
	testutils.DecodeResult(t, w, &reloaded)
	assert.Equal(t, models.ListingAvailable, reloaded.Status)

	// book again on another date and cancel it
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: "2026-10-20"}, tenant)
	require.Equal(t, http.StatusCreated, w.Code)
	testutils.DecodeResult(t, w, &created)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/bookings/"+created.Booking.ID+"/cancel", nil, owner)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/bookings/"+created.Booking.ID+"/cancel", nil, tenant)
	require.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/listings/"+listing.ID, nil, tenant)
	testutils.DecodeResult(t, w, &reloaded)
	assert.Equal(t, models.ListingAvailable, reloaded.Status)

	// a closed booking can't be cancelled twice
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/bookings/"+created.Booking.ID+"/cancel", nil, tenant)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListingStatusAndDelete(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	listing := testCtx.CreateListing(t, 120000)
	owner := testutils.AuthHeaders(testCtx.Token(t, testutils.OwnerID))
	tenant := testutils.AuthHeaders(testCtx.Token(t, testutils.TenantID))
	admin := testutils.AuthHeaders(testCtx.Token(t, testutils.AdminID))

	// booked is reserved for the booking flow
	w := testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/listings/"+listing.ID+"/status",
		models.SetListingStatusRequest{Status: "booked"}, owner)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/listings/"+listing.ID+"/status",
		models.SetListingStatusRequest{Status: "unavailable"}, tenant)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID),
		models.CreateBookingRequest{BookingDate: tomorrow}, tenant)
	require.Equal(t, http.StatusCreated, w.Code)

	// the owner can't edit while a booking is active, an admin can
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/listings/"+listing.ID+"/status",
		models.SetListingStatusRequest{Status: "unavailable"}, owner)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/api/listings/"+listing.ID+"/status",
		models.SetListingStatusRequest{Status: "unavailable"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// unavailable listings can't be deleted
	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/listings/"+listing.ID, nil, owner)
	assert.Equal(t, http.StatusConflict, w.Code)

	fresh := testCtx.CreateListing(t, 60000)
	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/listings/"+fresh.ID, nil, owner)
	require.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/listings/"+fresh.ID, nil, owner)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRedirectFlashAndLocale(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	listing := testCtx.CreateListing(t, 120000)
	tenant := testutils.AuthHeaders(testCtx.Token(t, testutils.TenantID))

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, bookingPath(listing.ID)+"?redirect=/bookings",
		models.CreateBookingRequest{BookingDate: tomorrow}, tenant)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/bookings", w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "flash=")

	// off-site redirects are ignored
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/listings/"+listing.ID+"?redirect=//evil.example", nil, tenant)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/listings/missing?lang=th", nil, tenant)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ไม่พบข้อมูลที่ต้องการ", testutils.DecodeResult(t, w, nil).Message)
}
