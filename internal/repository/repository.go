package repository

import (
	"context"
	"time"

	"github.com/rongwang/land-rental-server/internal/models"
)

// Repository is the store used by the core components. Reads outside a
// transaction never lock; every state change goes through WithTx.
type Repository interface {
	// WithTx runs fn inside one transaction. A non-nil error from fn rolls
	// everything back; lock timeouts and deadlocks come back as Conflict.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetListing(ctx context.Context, id string) (*models.Listing, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetContract(ctx context.Context, id string) (*models.Contract, error)

	ListBookingsByListing(ctx context.Context, listingID string) ([]models.Booking, error)
	ListBookingsByTenant(ctx context.Context, tenantID string) ([]models.Booking, error)
	ListPaymentsByStatus(ctx context.Context, status models.VerificationStatus) ([]models.Payment, error)
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
}

// Tx is the set of statements available inside a transaction.
// Lock* methods take an exclusive row lock held until commit or rollback and
// return NotFound when the row is absent. Callers lock in the order
// listing, booking, payment, contract.
type Tx interface {
	// Listing operations
	LockListing(ctx context.Context, id string) (*models.Listing, error)
	InsertListing(ctx context.Context, listing *models.Listing) error
	UpdateListing(ctx context.Context, listing *models.Listing) error
	DeleteListing(ctx context.Context, id string) error
	ListStoredFiles(ctx context.Context, listingID string) ([]string, error)

	// Booking operations
	LockBooking(ctx context.Context, id string) (*models.Booking, error)
	// CountActiveBookings counts pending or approved bookings on the listing, skipping excludeID
	CountActiveBookings(ctx context.Context, listingID, excludeID string) (int, error)
	// CountApprovedBookings counts approved bookings on the listing, skipping excludeID
	CountApprovedBookings(ctx context.Context, listingID, excludeID string) (int, error)
	// FindBookingForDate returns the tenant's non-rejected booking for the date, or nil
	FindBookingForDate(ctx context.Context, tenantID, listingID string, date time.Time) (*models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBooking(ctx context.Context, booking *models.Booking) error
	// RejectPendingSiblings rejects every other pending booking on the listing and returns them
	RejectPendingSiblings(ctx context.Context, listingID, keepID, reason, decidedBy string, at time.Time) ([]models.Booking, error)

	// Payment operations
	LockPayment(ctx context.Context, id string) (*models.Payment, error)
	// FindOpenPayment returns a pending or confirmed payment of the given type, or nil
	FindOpenPayment(ctx context.Context, bookingID string, paymentType models.PaymentType) (*models.Payment, error)
	InsertPayment(ctx context.Context, payment *models.Payment) error
	UpdatePayment(ctx context.Context, payment *models.Payment) error

	// Contract operations
	LockContract(ctx context.Context, id string) (*models.Contract, error)
	// FindContractByBooking returns the booking's contract, or nil
	FindContractByBooking(ctx context.Context, bookingID string) (*models.Contract, error)
	InsertContract(ctx context.Context, contract *models.Contract) error
	UpdateContract(ctx context.Context, contract *models.Contract) error

	// Fee and notification operations
	// CurrentFee returns the newest fee row, or nil when none is configured
	CurrentFee(ctx context.Context) (*models.Fee, error)
	InsertFee(ctx context.Context, fee *models.Fee) error
	InsertNotification(ctx context.Context, n *models.Notification) error
}

// DateKey is how booking and contract dates are stored and compared
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
