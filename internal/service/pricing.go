package service

import (
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/shopspring/decimal"
)

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)

	// prices are stored as NUMERIC(12,2)
	maxPrice = decimal.New(1, 10)
)

// DepositFor computes a booking's deposit. The monthly policy charges one
// month of rent rounded up to a whole unit; the percent policy charges the
// listing's deposit percent of the yearly price, rounded half away from zero.
func DepositFor(policy models.DepositPolicy, pricePerYear, depositPercent decimal.Decimal) (decimal.Decimal, error) {
	switch policy {
	case models.DepositMonthly:
		return pricePerYear.Div(twelve).Ceil(), nil
	case models.DepositPercent:
		return pricePerYear.Mul(depositPercent).Div(hundred).Round(0), nil
	}
	return decimal.Zero, apperror.Validation("unknown deposit policy %q", policy)
}

// MonthlyRent is the yearly price spread over twelve months, rounded up
func MonthlyRent(pricePerYear decimal.Decimal) decimal.Decimal {
	return pricePerYear.Div(twelve).Ceil()
}

// RemainingDue never goes below zero
func RemainingDue(total, deposit decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, total.Sub(deposit))
}

// NetAmount is what reaches the owner after the platform fee
func NetAmount(amount, feeRate decimal.Decimal) decimal.Decimal {
	return amount.Mul(hundred.Sub(feeRate)).Div(hundred).Round(2)
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return apperror.Validation("price per year must be greater than zero")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return apperror.Validation("price per year must be less than %s", maxPrice.String())
	}
	if !hasCents(price) {
		return apperror.Validation("price per year can have at most 2 decimal places")
	}
	return nil
}

func validatePercent(field string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return apperror.Validation("%s must be between 0 and 100", field)
	}
	if !hasCents(pct) {
		return apperror.Validation("%s can have at most 2 decimal places", field)
	}
	return nil
}

// hasCents reports whether d fits two decimal places; trailing zeros are fine
func hasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
