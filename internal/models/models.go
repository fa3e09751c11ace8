package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the coarse role carried by the authenticated actor
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated user performing an operation
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor holds the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Listing represents a rentable parcel owned by a user
type Listing struct {
	ID             string          `db:"id" json:"id"`
	OwnerID        string          `db:"owner_id" json:"ownerId"`
	Title          string          `db:"title" json:"title"`
	Status         ListingStatus   `db:"status" json:"status"`
	PricePerYear   decimal.Decimal `db:"price_per_year" json:"pricePerYear"`
	DepositPercent decimal.Decimal `db:"deposit_percent" json:"depositPercent"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Booking represents a tenant's reservation request against a listing
type Booking struct {
	ID              string          `db:"id" json:"id"`
	ListingID       string          `db:"listing_id" json:"listingId"`
	TenantID        string          `db:"tenant_id" json:"tenantId"`
	BookingDate     time.Time       `db:"booking_date" json:"bookingDate"`
	DepositAmount   decimal.Decimal `db:"deposit_amount" json:"depositAmount"`
	DepositPolicy   DepositPolicy   `db:"deposit_policy" json:"depositPolicy"`
	Status          BookingStatus   `db:"status" json:"status"`
	PaymentStatus   PaymentStatus   `db:"payment_status" json:"paymentStatus"`
	PaymentSlip     *string         `db:"payment_slip" json:"paymentSlip,omitempty"`
	RejectionReason *string         `db:"rejection_reason" json:"rejectionReason,omitempty"`
	DecidedBy       *string         `db:"decided_by" json:"decidedBy,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// HasSlip reports whether a deposit slip has been attached
func (b *Booking) HasSlip() bool {
	return b.PaymentSlip != nil && *b.PaymentSlip != ""
}

// Payment is a slip submission waiting for, or carrying, an admin decision
type Payment struct {
	ID              string             `db:"id" json:"id"`
	BookingID       string             `db:"booking_id" json:"bookingId"`
	ContractID      *string            `db:"contract_id" json:"contractId,omitempty"`
	PayerID         string             `db:"payer_id" json:"payerId"`
	Type            PaymentType        `db:"type" json:"type"`
	Amount          decimal.Decimal    `db:"amount" json:"amount"`
	FeeRate         decimal.Decimal    `db:"fee_rate" json:"feeRate"`
	NetAmount       decimal.Decimal    `db:"net_amount" json:"netAmount"`
	Status          VerificationStatus `db:"status" json:"status"`
	SlipImage       string             `db:"slip_image" json:"slipImage"`
	VerifiedBy      *string            `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time         `db:"verified_at" json:"verifiedAt,omitempty"`
	RejectionReason *string            `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"createdAt"`
}

// Contract is the 12-month lease issued for an approved booking
type Contract struct {
	ID             string          `db:"id" json:"id"`
	BookingID      string          `db:"booking_id" json:"bookingId"`
	ListingID      string          `db:"listing_id" json:"listingId"`
	TenantID       string          `db:"tenant_id" json:"tenantId"`
	OwnerID        string          `db:"owner_id" json:"ownerId"`
	ContractNumber string          `db:"contract_number" json:"contractNumber"`
	StartDate      time.Time       `db:"start_date" json:"startDate"`
	EndDate        time.Time       `db:"end_date" json:"endDate"`
	PricePerYear   decimal.Decimal `db:"price_per_year" json:"pricePerYear"`
	DepositAmount  decimal.Decimal `db:"deposit_amount" json:"depositAmount"`
	MonthlyRent    decimal.Decimal `db:"monthly_rent" json:"monthlyRent"`
	FeeRate        decimal.Decimal `db:"fee_rate" json:"feeRate"`
	Terms          string          `db:"terms" json:"terms"`
	Document       *string         `db:"document" json:"document,omitempty"`
	Status         ContractStatus  `db:"status" json:"status"`
	IssuedBy       string          `db:"issued_by" json:"issuedBy"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	SignedAt       *time.Time      `db:"signed_at" json:"signedAt,omitempty"`
}

// Fee is the platform fee applied to balance payments. The newest row wins.
type Fee struct {
	ID            string          `db:"id" json:"id"`
	Rate          decimal.Decimal `db:"rate" json:"rate"`
	AccountNumber string          `db:"account_number" json:"accountNumber"`
	AccountName   string          `db:"account_name" json:"accountName"`
	BankName      string          `db:"bank_name" json:"bankName"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// Notification is an in-app message written alongside a state change
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Link      string    `db:"link" json:"link"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
