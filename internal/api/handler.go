package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/rongwang/land-rental-server/internal/service"
	"github.com/rongwang/land-rental-server/internal/upload"
	"github.com/rongwang/land-rental-server/internal/utils"
)

// Options tunes the HTTP layer
type Options struct {
	Logger         *slog.Logger
	Locale         string
	Debug          bool
	CSRF           CSRFVerifier // nil disables the check
	RequestTimeout time.Duration
}

// Handler exposes the service over HTTP
type Handler struct {
	svc     *service.Service
	logger  *slog.Logger
	locale  string
	debug   bool
	csrf    CSRFVerifier
	timeout time.Duration
}

// NewHandler creates a new API handler
func NewHandler(svc *service.Service, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Handler{
		svc:     svc,
		logger:  logger,
		locale:  opts.Locale,
		debug:   opts.Debug,
		csrf:    opts.CSRF,
		timeout: opts.RequestTimeout,
	}
}

// SetupRoutes registers every route on router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	RegisterValidators()

	router.Use(LocaleMiddleware(h.locale), TimeoutMiddleware(h.timeout))
	router.GET("/health", h.health)

	api := router.Group("/api")
	api.Use(AuthMiddleware(), CSRFMiddleware(h.csrf))
	{
		api.POST("/listings", h.createListing)
		api.GET("/listings/:id", h.getListing)
		api.PUT("/listings/:id", h.updateListing)
		api.PUT("/listings/:id/status", h.setListingStatus)
		api.DELETE("/listings/:id", h.deleteListing)
		api.GET("/listings/:id/bookings", h.listListingBookings)
		api.POST("/listings/:id/bookings", h.createBooking)

		api.GET("/bookings", h.listMyBookings)
		api.GET("/bookings/:id", h.getBooking)
		api.POST("/bookings/:id/decision", h.decideBooking)
		api.POST("/bookings/:id/cancel", h.cancelBooking)
		api.POST("/bookings/:id/slip", h.submitSlip)
		api.POST("/bookings/:id/contract", h.issueContract)

		api.GET("/contracts/:id", h.getContract)
		api.POST("/contracts/:id/activate", h.activateContract)
		api.GET("/contracts/:id/document", h.contractDocument)
		api.POST("/contracts/:id/payments", h.submitPayment)

		api.GET("/payments/pending", h.listPendingPayments)
		api.POST("/payments/:id/decision", h.decidePayment)

		api.POST("/fees", h.setFee)
		api.GET("/notifications", h.listNotifications)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindError(err error) error {
	return apperror.Validation("invalid request: %v", err)
}

// formFile reads an optional multipart file; nil when the field is absent
func formFile(c *gin.Context, field string, rule upload.Rule) (*upload.File, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperror.Validation("could not read the uploaded file")
	}
	return readFile(rule, header)
}

func readFile(rule upload.Rule, header *multipart.FileHeader) (*upload.File, error) {
	file, err := upload.ReadMultipart(rule, header)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func requireFile(c *gin.Context, field string, rule upload.Rule) (upload.File, error) {
	file, err := formFile(c, field, rule)
	if err != nil {
		return upload.File{}, err
	}
	if file == nil {
		return upload.File{}, apperror.Validation("%s is required", field)
	}
	return *file, nil
}

// Listing handlers
func (h *Handler) createListing(c *gin.Context) {
	var req models.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	listing, err := h.svc.Listings.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, "listing.created", listing)
}

func (h *Handler) getListing(c *gin.Context) {
	listing, err := h.svc.Listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "ok", listing)
}

func (h *Handler) updateListing(c *gin.Context) {
	var req models.UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	listing, err := h.svc.Listings.UpdateTerms(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "listing.updated", listing)
}

func (h *Handler) setListingStatus(c *gin.Context) {
	var req models.SetListingStatusRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	listing, err := h.svc.Listings.SetStatus(c.Request.Context(), actorFrom(c), c.Param("id"), req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "listing.updated", listing)
}

func (h *Handler) deleteListing(c *gin.Context) {
	if err := h.svc.Listings.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "listing.deleted", nil)
}

func (h *Handler) listListingBookings(c *gin.Context) {
	bookings, err := h.svc.Listings.ListBookings(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "ok", bookings)
}

// Booking handlers
func (h *Handler) createBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	result, err := h.svc.Bookings.Create(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if result.Existing {
		h.respond(c, http.StatusOK, "booking.existing", result)
		return
	}
	h.respond(c, http.StatusCreated, "booking.created", result)
}

func (h *Handler) listMyBookings(c *gin.Context) {
	bookings, err := h.svc.Bookings.ListMine(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "ok", bookings)
}

func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.svc.Bookings.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "ok", booking)
}

func (h *Handler) decideBooking(c *gin.Context) {
	var req models.DecisionRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	booking, err := h.svc.Bookings.Decide(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	key := "booking.approved"
	if req.Action == "reject" {
		key = "booking.rejected"
	}
	h.respond(c, http.StatusOK, key, booking)
}

func (h *Handler) cancelBooking(c *gin.Context) {
	booking, err := h.svc.Bookings.Cancel(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "booking.cancelled", booking)
}

func (h *Handler) submitSlip(c *gin.Context) {
	file, err := requireFile(c, "slip_file", upload.SlipRule)
	if err != nil {
		h.fail(c, err)
		return
	}
	booking, err := h.svc.Payments.SubmitSlip(c.Request.Context(), actorFrom(c), c.Param("id"), file)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "slip.received", booking)
}

func (h *Handler) issueContract(c *gin.Context) {
	var req models.IssueContractRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	document, err := formFile(c, "contract_file", upload.ContractRule)
	if err != nil {
		h.fail(c, err)
		return
	}
	contract, err := h.svc.Contracts.Issue(c.Request.Context(), actorFrom(c), c.Param("id"), req, document)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, "contract.issued", contract)
}

// Contract handlers
func (h *Handler) getContract(c *gin.Context) {
	contract, err := h.svc.Contracts.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "ok", contract)
}

func (h *Handler) activateContract(c *gin.Context) {
	contract, err := h.svc.Contracts.Activate(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "contract.activated", contract)
}

func (h *Handler) contractDocument(c *gin.Context) {
	doc, err := h.svc.Contracts.Document(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "ok", doc)
}

func (h *Handler) submitPayment(c *gin.Context) {
	file, err := requireFile(c, "slip_file", upload.SlipRule)
	if err != nil {
		h.fail(c, err)
		return
	}
	payment, err := h.svc.Payments.SubmitPayment(c.Request.Context(), actorFrom(c), c.Param("id"), c.PostForm("type"), file)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, "payment.submitted", payment)
}

// Payment handlers
func (h *Handler) listPendingPayments(c *gin.Context) {
	payments, err := h.svc.Payments.ListPending(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "ok", payments)
}

func (h *Handler) decidePayment(c *gin.Context) {
	var req models.DecisionRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	payment, err := h.svc.Payments.Decide(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	key := "payment.confirmed"
	if req.Action == "reject" {
		key = "payment.rejected"
	}
	h.respond(c, http.StatusOK, key, payment)
}

func (h *Handler) setFee(c *gin.Context) {
	var req models.SetFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	fee, err := h.svc.Payments.SetFee(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, "fee.saved", fee)
}

func (h *Handler) listNotifications(c *gin.Context) {
	notifications, err := h.svc.Notifications(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, "ok", notifications)
}
