package models

import "fmt"

// ListingStatus is the availability of a listing
type ListingStatus string

const (
	ListingAvailable   ListingStatus = "available"
	ListingBooked      ListingStatus = "booked"
	ListingUnavailable ListingStatus = "unavailable"
)

// BookingStatus is the approval state of a booking
type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingApproved BookingStatus = "approved"
	BookingRejected BookingStatus = "rejected"
)

// PaymentStatus is the deposit/balance progress of a booking. It only moves forward.
type PaymentStatus string

const (
	PaymentWaiting        PaymentStatus = "waiting"
	PaymentDepositSuccess PaymentStatus = "deposit_success"
	PaymentFullPaid       PaymentStatus = "full_paid"
)

// VerificationStatus is the admin decision on a submitted payment slip
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationConfirmed VerificationStatus = "confirmed"
	VerificationRejected  VerificationStatus = "rejected"
)

// PaymentType says what a submitted payment is for
type PaymentType string

const (
	PaymentTypeDeposit     PaymentType = "deposit"
	PaymentTypeFullPayment PaymentType = "full_payment"
	PaymentTypeMonthlyRent PaymentType = "monthly_rent"
)

// ContractStatus is the signing state of a contract
type ContractStatus string

const (
	ContractWaitingSignature ContractStatus = "waiting_signature"
	ContractActive           ContractStatus = "active"
)

// DepositPolicy selects the formula used to compute a booking's deposit
type DepositPolicy string

const (
	// DepositMonthly charges one month of the yearly price, rounded up
	DepositMonthly DepositPolicy = "monthly"
	// DepositPercent charges the listing's deposit_percent of the yearly price
	DepositPercent DepositPolicy = "percent"
)

var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingAvailable:   {ListingBooked, ListingUnavailable},
	ListingBooked:      {ListingAvailable, ListingUnavailable},
	ListingUnavailable: {ListingAvailable},
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending: {BookingApproved, BookingRejected},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentWaiting:        {PaymentDepositSuccess},
	PaymentDepositSuccess: {PaymentFullPaid},
}

var verificationTransitions = map[VerificationStatus][]VerificationStatus{
	VerificationPending: {VerificationConfirmed, VerificationRejected},
}

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractWaitingSignature: {ContractActive},
}

// TransitionError reports a move the transition table does not allow
type TransitionError struct {
	Machine   string
	Current   string
	Requested string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q to %q", e.Machine, e.Current, e.Requested)
}

func transition[S ~string](machine string, table map[S][]S, current, requested S) error {
	for _, next := range table[current] {
		if next == requested {
			return nil
		}
	}
	return &TransitionError{Machine: machine, Current: string(current), Requested: string(requested)}
}

// Transition checks a listing status change against the listing table
func (s ListingStatus) Transition(requested ListingStatus) error {
	return transition("listing", listingTransitions, s, requested)
}

// Transition checks a booking status change. Approved and rejected are terminal.
func (s BookingStatus) Transition(requested BookingStatus) error {
	return transition("booking", bookingTransitions, s, requested)
}

// Transition checks a payment progress change. There is no regression.
func (s PaymentStatus) Transition(requested PaymentStatus) error {
	return transition("payment status", paymentTransitions, s, requested)
}

// Transition checks an admin verification decision
func (s VerificationStatus) Transition(requested VerificationStatus) error {
	return transition("payment", verificationTransitions, s, requested)
}

// Transition checks a contract signing change
func (s ContractStatus) Transition(requested ContractStatus) error {
	return transition("contract", contractTransitions, s, requested)
}

// IsActive reports whether the booking still holds a claim on its listing
func (s BookingStatus) IsActive() bool {
	return s == BookingPending || s == BookingApproved
}

// IsTerminal reports whether the verification decision has been made
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationConfirmed || s == VerificationRejected
}

// ParseListingStatus accepts only the three stored values
func ParseListingStatus(raw string) (ListingStatus, bool) {
	switch s := ListingStatus(raw); s {
	case ListingAvailable, ListingBooked, ListingUnavailable:
		return s, true
	}
	return ListingAvailable, false
}

// ParsePaymentType accepts only the three payment types
func ParsePaymentType(raw string) (PaymentType, bool) {
	switch t := PaymentType(raw); t {
	case PaymentTypeDeposit, PaymentTypeFullPayment, PaymentTypeMonthlyRent:
		return t, true
	}
	return "", false
}

// ParseDepositPolicy defaults to the monthly formula when raw is empty
func ParseDepositPolicy(raw string) (DepositPolicy, bool) {
	switch p := DepositPolicy(raw); p {
	case "":
		return DepositMonthly, true
	case DepositMonthly, DepositPercent:
		return p, true
	}
	return "", false
}
