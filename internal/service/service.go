package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/audit"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/rongwang/land-rental-server/internal/policy"
	"github.com/rongwang/land-rental-server/internal/repository"
	"github.com/rongwang/land-rental-server/internal/storage"
	"github.com/rongwang/land-rental-server/internal/upload"
	"github.com/rongwang/land-rental-server/internal/utils"
)

// Renderer produces a contract document when none was uploaded
type Renderer interface {
	Render(contract *models.Contract, listing *models.Listing) ([]byte, error)
}

// Options carries the collaborators shared by every component
type Options struct {
	Logger   *slog.Logger
	Audit    audit.Sink
	Storage  storage.Storage
	Renderer Renderer
	// Location decides what "today" means for booking and contract dates
	Location *time.Location
	Now      func() time.Time
}

// Service groups the four core components
type Service struct {
	Listings  *ListingRegistry
	Bookings  *BookingLedger
	Payments  *PaymentVerifier
	Contracts *ContractIssuer

	deps *deps
}

// New wires the components on top of repo
func New(repo repository.Repository, opts Options) *Service {
	d := newDeps(repo, opts)
	listings := &ListingRegistry{deps: d}

	return &Service{
		Listings:  listings,
		Bookings:  &BookingLedger{deps: d, listings: listings},
		Payments:  &PaymentVerifier{deps: d},
		Contracts: &ContractIssuer{deps: d, renderer: opts.Renderer},
		deps:      d,
	}
}

// Notifications returns the actor's in-app notifications, newest first
func (s *Service) Notifications(ctx context.Context, actor models.Actor) ([]models.Notification, error) {
	if err := policy.RequireActor(actor); err != nil {
		return nil, err
	}
	return s.deps.repo.ListNotifications(ctx, actor.ID)
}

// Today returns the current calendar date in the configured location
func (s *Service) Today() time.Time {
	return s.deps.today()
}

type deps struct {
	repo    repository.Repository
	logger  *slog.Logger
	audit   audit.Sink
	storage storage.Storage
	loc     *time.Location
	now     func() time.Time
}

func newDeps(repo repository.Repository, opts Options) *deps {
	d := &deps{
		repo:    repo,
		logger:  opts.Logger,
		audit:   opts.Audit,
		storage: opts.Storage,
		loc:     opts.Location,
		now:     opts.Now,
	}
	if d.logger == nil {
		d.logger = utils.DiscardLogger()
	}
	if d.audit == nil {
		d.audit = audit.NewSlogSink(d.logger)
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// clock is the timestamp written to created_at/updated_at columns
func (d *deps) clock() time.Time {
	return d.now().UTC()
}

// today is midnight UTC of the current calendar date in d.loc
func (d *deps) today() time.Time {
	t := d.now().In(d.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (d *deps) record(ctx context.Context, action string, actor models.Actor, entityID string, err error, fields map[string]any) {
	d.audit.Record(ctx, audit.Event{
		Action:   action,
		ActorID:  actor.ID,
		EntityID: entityID,
		Fields:   fields,
		Err:      err,
	})
}

// stage writes a validated upload to the staging area
func (d *deps) stage(ctx context.Context, artifact *upload.Artifact) (*storage.Staged, error) {
	if d.storage == nil {
		return nil, apperror.Storage(errors.New("no storage configured"), "uploads are disabled")
	}
	return d.storage.Stage(ctx, artifact.Category, artifact.Name, artifact.ContentType, artifact.Data)
}

// promote publishes a staged file after commit. The row already points at
// staged.Path, so a failure leaves an orphan reference that is logged.
func (d *deps) promote(ctx context.Context, staged *storage.Staged) error {
	if staged == nil {
		return nil
	}
	if err := d.storage.Promote(ctx, staged); err != nil {
		d.logger.ErrorContext(ctx, "[storage] promotion failed after commit", "path", staged.Path, "error", err)
		return apperror.Wrap(err, "could not publish %s", staged.Path)
	}
	return nil
}

// discard drops a staged file after an aborted transaction
func (d *deps) discard(ctx context.Context, staged *storage.Staged) {
	if staged == nil {
		return
	}
	if err := d.storage.Discard(ctx, staged); err != nil {
		d.logger.WarnContext(ctx, "[storage] could not discard staged file", "path", staged.Path, "error", err)
	}
}

func notify(ctx context.Context, tx repository.Tx, at time.Time, userID, kind, title, message, link string) error {
	return tx.InsertNotification(ctx, &models.Notification{
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		Link:      link,
		CreatedAt: at,
	})
}

// transitionConflict reports a refused state change as a Conflict
func transitionConflict(err error) error {
	if err == nil {
		return nil
	}
	return &apperror.Error{Kind: apperror.KindConflict, Message: err.Error(), Err: err}
}
