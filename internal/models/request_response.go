package models

import "github.com/shopspring/decimal"

// Request models
type CreateListingRequest struct {
	Title          string          `json:"title" binding:"required"`
	PricePerYear   decimal.Decimal `json:"pricePerYear"`
	DepositPercent decimal.Decimal `json:"depositPercent"`
}

type UpdateListingRequest struct {
	PricePerYear   decimal.Decimal `json:"pricePerYear"`
	DepositPercent decimal.Decimal `json:"depositPercent"`
}

type SetListingStatusRequest struct {
	Status string `json:"status" form:"status" binding:"required"`
}

type CreateBookingRequest struct {
	BookingDate   string `json:"bookingDate" form:"bookingDate" binding:"required,calendardate"`
	DepositPolicy string `json:"depositPolicy" form:"depositPolicy" binding:"omitempty,oneof=monthly percent"`
}

type DecisionRequest struct {
	Action string `json:"action" form:"action" binding:"required,oneof=approve reject"`
	Reason string `json:"reason" form:"reason"`
}

type IssueContractRequest struct {
	StartDate string `form:"startDate" binding:"omitempty,calendardate"`
	Terms     string `form:"terms"`
}

type SetFeeRequest struct {
	Rate          decimal.Decimal `json:"rate"`
	AccountNumber string          `json:"accountNumber" binding:"required"`
	AccountName   string          `json:"accountName" binding:"required"`
	BankName      string          `json:"bankName" binding:"required"`
}

// Response models

// Result is the uniform envelope returned to programmatic callers
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Detail  string      `json:"detail,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// BookingResult tells the caller whether a create call returned an existing booking
type BookingResult struct {
	Booking  *Booking `json:"booking"`
	Existing bool     `json:"existing"`
}

// ContractDocument points at the stored PDF for a contract
type ContractDocument struct {
	ContractID string `json:"contractId"`
	Path       string `json:"path"`
	Generated  bool   `json:"generated"`
}
