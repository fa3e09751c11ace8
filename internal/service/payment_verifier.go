package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/rongwang/land-rental-server/internal/policy"
	"github.com/rongwang/land-rental-server/internal/repository"
	"github.com/rongwang/land-rental-server/internal/upload"
	"github.com/shopspring/decimal"
)

// PaymentVerifier handles slip submissions and the admin decision on them
type PaymentVerifier struct {
	*deps
}

// SubmitSlip attaches the deposit slip to a pending booking. The file is
// validated and staged before the transaction and published after commit.
func (p *PaymentVerifier) SubmitSlip(ctx context.Context, actor models.Actor, bookingID string, file upload.File) (*models.Booking, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	pre, err := p.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanActAsTenant(actor, pre); err != nil {
		return nil, err
	}
	listing, err := p.repo.GetListing(ctx, pre.ListingID)
	if err != nil {
		return nil, err
	}

	artifact, err := upload.Validate(upload.SlipRule, file)
	if err != nil {
		p.record(ctx, "booking.submit_slip", actor, bookingID, err, nil)
		return nil, err
	}
	staged, err := p.stage(ctx, artifact)
	if err != nil {
		p.record(ctx, "booking.submit_slip", actor, bookingID, err, nil)
		return nil, err
	}

	var booking *models.Booking
	err = p.repo.WithTx(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := policy.CanActAsTenant(actor, b); err != nil {
			return err
		}
		if b.Status != models.BookingPending {
			return apperror.Conflict("booking is %s, slips are accepted only while pending", b.Status)
		}
		if err := b.PaymentStatus.Transition(models.PaymentDepositSuccess); err != nil {
			return transitionConflict(err)
		}

		now := p.clock()
		path := staged.Path
		b.PaymentSlip = &path
		b.PaymentStatus = models.PaymentDepositSuccess
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}

		payment := &models.Payment{
			BookingID: b.ID,
			PayerID:   actor.ID,
			Type:      models.PaymentTypeDeposit,
			Amount:    b.DepositAmount,
			FeeRate:   decimal.Zero,
			NetAmount: b.DepositAmount,
			Status:    models.VerificationPending,
			SlipImage: path,
			CreatedAt: now,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		if err := notify(ctx, tx, now, listing.OwnerID, "payment", "Deposit slip received",
			fmt.Sprintf("A deposit of %s was submitted for %s", b.DepositAmount.StringFixed(2), listing.Title),
			bookingLink(b.ID)); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		p.discard(ctx, staged)
		p.record(ctx, "booking.submit_slip", actor, bookingID, err, nil)
		return nil, err
	}

	err = p.promote(ctx, staged)
	p.record(ctx, "booking.submit_slip", actor, bookingID, err, map[string]any{"path": staged.Path})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// SubmitPayment records a balance or monthly rent slip against a contract
func (p *PaymentVerifier) SubmitPayment(ctx context.Context, actor models.Actor, contractID, rawType string, file upload.File) (*models.Payment, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	paymentType, ok := models.ParsePaymentType(strings.TrimSpace(rawType))
	if !ok || paymentType == models.PaymentTypeDeposit {
		return nil, apperror.Validation("payment type must be full_payment or monthly_rent")
	}

	pre, err := p.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if pre.TenantID != actor.ID {
		return nil, apperror.Authorization("only the tenant of this contract may pay for it")
	}

	artifact, err := upload.Validate(upload.SlipRule, file)
	if err != nil {
		p.record(ctx, "payment.submit", actor, contractID, err, nil)
		return nil, err
	}
	staged, err := p.stage(ctx, artifact)
	if err != nil {
		p.record(ctx, "payment.submit", actor, contractID, err, nil)
		return nil, err
	}

	var payment *models.Payment
	err = p.repo.WithTx(ctx, func(tx repository.Tx) error {
		booking, err := tx.LockBooking(ctx, pre.BookingID)
		if err != nil {
			return err
		}
		contract, err := tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		if booking.Status != models.BookingApproved {
			return apperror.Conflict("booking is %s, payments need an approved booking", booking.Status)
		}

		var amount decimal.Decimal
		switch paymentType {
		case models.PaymentTypeFullPayment:
			if err := booking.PaymentStatus.Transition(models.PaymentFullPaid); err != nil {
				return transitionConflict(err)
			}
			open, err := tx.FindOpenPayment(ctx, booking.ID, models.PaymentTypeFullPayment)
			if err != nil {
				return err
			}
			if open != nil {
				return apperror.Conflict("a full payment is already %s for this booking", open.Status)
			}
			amount = RemainingDue(contract.PricePerYear, booking.DepositAmount)
			if amount.IsZero() {
				return apperror.Conflict("nothing is left to pay on this booking")
			}
		case models.PaymentTypeMonthlyRent:
			amount = contract.MonthlyRent
		}

		now := p.clock()
		contractRef := contract.ID
		payment = &models.Payment{
			BookingID:  booking.ID,
			ContractID: &contractRef,
			PayerID:    actor.ID,
			Type:       paymentType,
			Amount:     amount,
			FeeRate:    contract.FeeRate,
			NetAmount:  NetAmount(amount, contract.FeeRate),
			Status:     models.VerificationPending,
			SlipImage:  staged.Path,
			CreatedAt:  now,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		return notify(ctx, tx, now, contract.OwnerID, "payment", "Payment submitted",
			fmt.Sprintf("A %s payment of %s was submitted for contract %s",
				strings.ReplaceAll(string(paymentType), "_", " "), amount.StringFixed(2), contract.ContractNumber),
			contractLink(contract.ID))
	})
	if err != nil {
		p.discard(ctx, staged)
		p.record(ctx, "payment.submit", actor, contractID, err, map[string]any{"type": string(paymentType)})
		return nil, err
	}

	err = p.promote(ctx, staged)
	p.record(ctx, "payment.submit", actor, payment.ID, err, map[string]any{"type": string(paymentType), "contract_id": contractID})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Decide dispatches an admin approve or reject action
func (p *PaymentVerifier) Decide(ctx context.Context, actor models.Actor, paymentID string, req models.DecisionRequest) (*models.Payment, error) {
	switch req.Action {
	case "approve":
		return p.AdminVerify(ctx, actor, paymentID, true, req.Reason)
	case "reject":
		return p.AdminVerify(ctx, actor, paymentID, false, req.Reason)
	}
	return nil, apperror.Validation("action must be approve or reject")
}

// AdminVerify confirms or rejects a pending payment. Repeating the decision
// already taken returns the payment unchanged; the opposite decision is a Conflict.
func (p *PaymentVerifier) AdminVerify(ctx context.Context, actor models.Actor, paymentID string, approved bool, reason string) (*models.Payment, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if !approved && reason == "" {
		return nil, apperror.Validation("a reason is required to reject a payment")
	}
	pre, err := p.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	target := models.VerificationRejected
	if approved {
		target = models.VerificationConfirmed
	}

	var payment *models.Payment
	unchanged := false
	err = p.repo.WithTx(ctx, func(tx repository.Tx) error {
		booking, err := tx.LockBooking(ctx, pre.BookingID)
		if err != nil {
			return err
		}
		pay, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}

		if pay.Status.IsTerminal() {
			if pay.Status == target {
				payment, unchanged = pay, true
				return nil
			}
			return apperror.Conflict("payment was already %s", pay.Status)
		}
		if err := pay.Status.Transition(target); err != nil {
			return transitionConflict(err)
		}

		now := p.clock()
		pay.Status = target
		pay.VerifiedBy = &actor.ID
		pay.VerifiedAt = &now
		if !approved {
			pay.RejectionReason = &reason
		}
		if err := tx.UpdatePayment(ctx, pay); err != nil {
			return err
		}

		if approved && pay.Type == models.PaymentTypeFullPayment {
			if err := booking.PaymentStatus.Transition(models.PaymentFullPaid); err != nil {
				return transitionConflict(err)
			}
			booking.PaymentStatus = models.PaymentFullPaid
			booking.UpdatedAt = now
			if err := tx.UpdateBooking(ctx, booking); err != nil {
				return err
			}
		}

		title, message := "Payment confirmed", fmt.Sprintf("Your %s payment of %s was confirmed",
			strings.ReplaceAll(string(pay.Type), "_", " "), pay.Amount.StringFixed(2))
		if !approved {
			title, message = "Payment rejected", fmt.Sprintf("Your %s payment of %s was rejected: %s",
				strings.ReplaceAll(string(pay.Type), "_", " "), pay.Amount.StringFixed(2), reason)
		}
		if err := notify(ctx, tx, now, pay.PayerID, "payment", title, message, bookingLink(booking.ID)); err != nil {
			return err
		}

		payment = pay
		return nil
	})
	p.record(ctx, "payment.verify", actor, paymentID, err, map[string]any{"decision": string(target), "unchanged": unchanged})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ListPending returns payments waiting for an admin decision
func (p *PaymentVerifier) ListPending(ctx context.Context, actor models.Actor) ([]models.Payment, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return p.repo.ListPaymentsByStatus(ctx, models.VerificationPending)
}

// SetFee stores a new platform fee; the newest row is the one applied
func (p *PaymentVerifier) SetFee(ctx context.Context, actor models.Actor, req models.SetFeeRequest) (*models.Fee, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validatePercent("fee rate", req.Rate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.AccountNumber) == "" || strings.TrimSpace(req.AccountName) == "" || strings.TrimSpace(req.BankName) == "" {
		return nil, apperror.Validation("bank account details are required")
	}

	fee := &models.Fee{
		Rate:          req.Rate,
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		AccountName:   strings.TrimSpace(req.AccountName),
		BankName:      strings.TrimSpace(req.BankName),
		CreatedAt:     p.clock(),
	}
	err := p.repo.WithTx(ctx, func(tx repository.Tx) error {
		return tx.InsertFee(ctx, fee)
	})
	p.record(ctx, "fee.set", actor, fee.ID, err, map[string]any{"rate": req.Rate.String()})
	if err != nil {
		return nil, err
	}
	return fee, nil
}
