package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/rongwang/land-rental-server/internal/policy"
	"github.com/rongwang/land-rental-server/internal/repository"
	"github.com/rongwang/land-rental-server/internal/storage"
	"github.com/rongwang/land-rental-server/internal/upload"
	"github.com/shopspring/decimal"
)

const contractTermMonths = 12

// ContractIssuer creates the lease contract for an approved booking
type ContractIssuer struct {
	*deps
	renderer Renderer
}

func contractLink(id string) string {
	return "/contracts/" + id
}

// Issue creates the booking's contract. document is an optional PDF supplied
// by the owner; without one the summary is rendered on first download.
func (c *ContractIssuer) Issue(ctx context.Context, actor models.Actor, bookingID string, req models.IssueContractRequest, document *upload.File) (*models.Contract, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	pre, err := c.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	preListing, err := c.repo.GetListing(ctx, pre.ListingID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanManageListing(actor, preListing); err != nil {
		return nil, err
	}

	today := c.today()
	start := today
	if strings.TrimSpace(req.StartDate) != "" {
		if start, err = ParseCalendarDate(req.StartDate); err != nil {
			return nil, err
		}
		if start.Before(today) {
			return nil, apperror.Validation("contract start date cannot be in the past")
		}
	}

	var staged *storage.Staged
	if document != nil {
		artifact, err := upload.Validate(upload.ContractRule, *document)
		if err != nil {
			c.record(ctx, "contract.issue", actor, bookingID, err, nil)
			return nil, err
		}
		if staged, err = c.stage(ctx, artifact); err != nil {
			c.record(ctx, "contract.issue", actor, bookingID, err, nil)
			return nil, err
		}
	}

	var contract *models.Contract
	err = c.repo.WithTx(ctx, func(tx repository.Tx) error {
		listing, err := tx.LockListing(ctx, pre.ListingID)
		if err != nil {
			return err
		}
		booking, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := policy.CanManageListing(actor, listing); err != nil {
			return err
		}
		if booking.Status != models.BookingApproved {
			return apperror.Conflict("booking is %s, contracts need an approved booking", booking.Status)
		}

		existing, err := tx.FindContractByBooking(ctx, booking.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.Conflict("contract %s already exists for this booking", existing.ContractNumber)
		}

		feeRate := decimal.Zero
		fee, err := tx.CurrentFee(ctx)
		if err != nil {
			return err
		}
		if fee != nil {
			feeRate = fee.Rate
		}

		now := c.clock()
		contract = &models.Contract{
			BookingID:      booking.ID,
			ListingID:      listing.ID,
			TenantID:       booking.TenantID,
			OwnerID:        listing.OwnerID,
			ContractNumber: newContractNumber(today),
			StartDate:      start,
			EndDate:        AddMonthsClamped(start, contractTermMonths),
			PricePerYear:   listing.PricePerYear,
			DepositAmount:  booking.DepositAmount,
			MonthlyRent:    MonthlyRent(listing.PricePerYear),
			FeeRate:        feeRate,
			Terms:          strings.TrimSpace(req.Terms),
			Status:         models.ContractWaitingSignature,
			IssuedBy:       actor.ID,
			CreatedAt:      now,
		}
		if staged != nil {
			path := staged.Path
			contract.Document = &path
		}
		if err := tx.InsertContract(ctx, contract); err != nil {
			return err
		}
		return notify(ctx, tx, now, booking.TenantID, "contract", "Contract issued",
			fmt.Sprintf("Contract %s for %s is ready to sign", contract.ContractNumber, listing.Title),
			contractLink(contract.ID))
	})
	if err != nil {
		c.discard(ctx, staged)
		c.record(ctx, "contract.issue", actor, bookingID, err, nil)
		return nil, err
	}

	err = c.promote(ctx, staged)
	c.record(ctx, "contract.issue", actor, contract.ID, err, map[string]any{
		"booking_id":      bookingID,
		"contract_number": contract.ContractNumber,
		"uploaded":        staged != nil,
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// Activate marks a contract as signed; admin only
func (c *ContractIssuer) Activate(ctx context.Context, actor models.Actor, id string) (*models.Contract, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	var contract *models.Contract
	err := c.repo.WithTx(ctx, func(tx repository.Tx) error {
		ct, err := tx.LockContract(ctx, id)
		if err != nil {
			return err
		}
		if err := ct.Status.Transition(models.ContractActive); err != nil {
			return transitionConflict(err)
		}
		now := c.clock()
		ct.Status = models.ContractActive
		ct.SignedAt = &now
		if err := tx.UpdateContract(ctx, ct); err != nil {
			return err
		}
		for _, userID := range []string{ct.TenantID, ct.OwnerID} {
			if err := notify(ctx, tx, now, userID, "contract", "Contract active",
				fmt.Sprintf("Contract %s is now active", ct.ContractNumber), contractLink(ct.ID)); err != nil {
				return err
			}
		}
		contract = ct
		return nil
	})
	c.record(ctx, "contract.activate", actor, id, err, nil)
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// Get returns a contract to its tenant, its owner or an admin
func (c *ContractIssuer) Get(ctx context.Context, actor models.Actor, id string) (*models.Contract, error) {
	contract, err := c.repo.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanViewContract(actor, contract); err != nil {
		return nil, err
	}
	return contract, nil
}

// Document returns the stored contract document, rendering and storing a
// summary PDF the first time when none was uploaded.
func (c *ContractIssuer) Document(ctx context.Context, actor models.Actor, id string) (*models.ContractDocument, error) {
	contract, err := c.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if contract.Document != nil {
		return &models.ContractDocument{ContractID: id, Path: *contract.Document}, nil
	}
	if c.renderer == nil {
		return nil, apperror.NotFound("contract %s has no document", id)
	}

	listing, err := c.repo.GetListing(ctx, contract.ListingID)
	if err != nil {
		return nil, err
	}
	data, err := c.renderer.Render(contract, listing)
	if err != nil {
		return nil, apperror.Storage(err, "could not render contract document")
	}
	staged, err := c.stage(ctx, &upload.Artifact{
		Category:    storage.CategoryContracts,
		Name:        uuid.New().String() + ".pdf",
		ContentType: "application/pdf",
		Data:        data,
	})
	if err != nil {
		return nil, err
	}

	doc := &models.ContractDocument{ContractID: id}
	err = c.repo.WithTx(ctx, func(tx repository.Tx) error {
		ct, err := tx.LockContract(ctx, id)
		if err != nil {
			return err
		}
		// another request rendered it first
		if ct.Document != nil {
			doc.Path = *ct.Document
			return nil
		}
		path := staged.Path
		ct.Document = &path
		doc.Path, doc.Generated = path, true
		return tx.UpdateContract(ctx, ct)
	})
	if err != nil || !doc.Generated {
		c.discard(ctx, staged)
	}
	if err != nil {
		c.record(ctx, "contract.render", actor, id, err, nil)
		return nil, err
	}
	if doc.Generated {
		err = c.promote(ctx, staged)
		c.record(ctx, "contract.render", actor, id, err, map[string]any{"path": doc.Path})
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}
