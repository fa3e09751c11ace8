package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
)

// MemoryRepository keeps everything in maps. A transaction holds one global
// mutex for its whole duration, which serializes writers the way row locks
// would, and restores a snapshot when fn fails.
type MemoryRepository struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	listings      map[string]models.Listing
	bookings      map[string]models.Booking
	payments      map[string]models.Payment
	contracts     map[string]models.Contract
	fees          []models.Fee
	notifications []models.Notification
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: memoryState{
		listings:  map[string]models.Listing{},
		bookings:  map[string]models.Booking{},
		payments:  map[string]models.Payment{},
		contracts: map[string]models.Contract{},
	}}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		listings:      make(map[string]models.Listing, len(s.listings)),
		bookings:      make(map[string]models.Booking, len(s.bookings)),
		payments:      make(map[string]models.Payment, len(s.payments)),
		contracts:     make(map[string]models.Contract, len(s.contracts)),
		fees:          append([]models.Fee(nil), s.fees...),
		notifications: append([]models.Notification(nil), s.notifications...),
	}
	for k, v := range s.listings {
		out.listings[k] = v
	}
	for k, v := range s.bookings {
		out.bookings[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k, v := range s.contracts {
		out.contracts[k] = v
	}
	return out
}

// WithTx runs fn while holding the repository lock
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return mapError(err, "begin transaction")
	}

	snapshot := r.state.clone()
	defer func() {
		if p := recover(); p != nil {
			r.state = snapshot
			panic(p)
		}
		if err != nil {
			r.state = snapshot
		}
	}()

	return mapError(fn(&memoryTx{state: &r.state}), "transaction")
}

func (r *MemoryRepository) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: &r.state}).LockListing(ctx, id)
}

func (r *MemoryRepository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: &r.state}).LockBooking(ctx, id)
}

func (r *MemoryRepository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: &r.state}).LockPayment(ctx, id)
}

func (r *MemoryRepository) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: &r.state}).LockContract(ctx, id)
}

func (r *MemoryRepository) ListBookingsByListing(_ context.Context, listingID string) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := filterBookings(r.state.bookings, func(b models.Booking) bool { return b.ListingID == listingID })
	return out, nil
}

func (r *MemoryRepository) ListBookingsByTenant(_ context.Context, tenantID string) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := filterBookings(r.state.bookings, func(b models.Booking) bool { return b.TenantID == tenantID })
	// newest first, like the SQL query
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MemoryRepository) ListPaymentsByStatus(_ context.Context, status models.VerificationStatus) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.state.payments {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessByTime(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out, nil
}

func (r *MemoryRepository) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for i := len(r.state.notifications) - 1; i >= 0; i-- {
		if n := r.state.notifications[i]; n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func filterBookings(all map[string]models.Booking, keep func(models.Booking) bool) []models.Booking {
	var out []models.Booking
	for _, b := range all {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessByTime(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out
}

func lessByTime(a, b time.Time, idA, idB string) bool {
	if a.Equal(b) {
		return idA < idB
	}
	return a.Before(b)
}

// memoryTx works directly on the live state; the caller holds the lock
type memoryTx struct {
	state *memoryState
}

// Listing statements
func (t *memoryTx) LockListing(_ context.Context, id string) (*models.Listing, error) {
	l, ok := t.state.listings[id]
	if !ok {
		return nil, apperror.NotFound("listing %s not found", id)
	}
	return &l, nil
}

func (t *memoryTx) InsertListing(_ context.Context, l *models.Listing) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	t.state.listings[l.ID] = *l
	return nil
}

func (t *memoryTx) UpdateListing(_ context.Context, l *models.Listing) error {
	if _, ok := t.state.listings[l.ID]; !ok {
		return apperror.NotFound("listing %s not found", l.ID)
	}
	t.state.listings[l.ID] = *l
	return nil
}

func (t *memoryTx) DeleteListing(_ context.Context, id string) error {
	for bid, b := range t.state.bookings {
		if b.ListingID != id {
			continue
		}
		for pid, p := range t.state.payments {
			if p.BookingID == bid {
				delete(t.state.payments, pid)
			}
		}
		delete(t.state.bookings, bid)
	}
	for cid, c := range t.state.contracts {
		if c.ListingID == id {
			delete(t.state.contracts, cid)
		}
	}
	delete(t.state.listings, id)
	return nil
}

func (t *memoryTx) ListStoredFiles(_ context.Context, listingID string) ([]string, error) {
	seen := map[string]bool{}
	var paths []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for bid, b := range t.state.bookings {
		if b.ListingID != listingID {
			continue
		}
		if b.PaymentSlip != nil {
			add(*b.PaymentSlip)
		}
		for _, p := range t.state.payments {
			if p.BookingID == bid {
				add(p.SlipImage)
			}
		}
	}
	for _, c := range t.state.contracts {
		if c.ListingID == listingID && c.Document != nil {
			add(*c.Document)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Booking statements
func (t *memoryTx) LockBooking(_ context.Context, id string) (*models.Booking, error) {
	b, ok := t.state.bookings[id]
	if !ok {
		return nil, apperror.NotFound("booking %s not found", id)
	}
	return &b, nil
}

func (t *memoryTx) CountActiveBookings(_ context.Context, listingID, excludeID string) (int, error) {
	n := 0
	for _, b := range t.state.bookings {
		if b.ListingID == listingID && b.ID != excludeID && b.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) CountApprovedBookings(_ context.Context, listingID, excludeID string) (int, error) {
	n := 0
	for _, b := range t.state.bookings {
		if b.ListingID == listingID && b.ID != excludeID && b.Status == models.BookingApproved {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) FindBookingForDate(_ context.Context, tenantID, listingID string, date time.Time) (*models.Booking, error) {
	matches := filterBookings(t.state.bookings, func(b models.Booking) bool {
		return b.TenantID == tenantID && b.ListingID == listingID &&
			DateKey(b.BookingDate) == DateKey(date) && b.Status != models.BookingRejected
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (t *memoryTx) InsertBooking(_ context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	t.state.bookings[b.ID] = *b
	return nil
}

func (t *memoryTx) UpdateBooking(_ context.Context, b *models.Booking) error {
	if _, ok := t.state.bookings[b.ID]; !ok {
		return apperror.NotFound("booking %s not found", b.ID)
	}
	t.state.bookings[b.ID] = *b
	return nil
}

func (t *memoryTx) RejectPendingSiblings(
	_ context.Context,
	listingID, keepID, reason, decidedBy string,
	at time.Time,
) ([]models.Booking, error) {
	siblings := filterBookings(t.state.bookings, func(b models.Booking) bool {
		return b.ListingID == listingID && b.ID != keepID && b.Status == models.BookingPending
	})
	for i := range siblings {
		b := &siblings[i]
		b.Status = models.BookingRejected
		b.RejectionReason = &reason
		b.DecidedBy = &decidedBy
		b.UpdatedAt = at
		t.state.bookings[b.ID] = *b
	}
	return siblings, nil
}

// Payment statements
func (t *memoryTx) LockPayment(_ context.Context, id string) (*models.Payment, error) {
	p, ok := t.state.payments[id]
	if !ok {
		return nil, apperror.NotFound("payment %s not found", id)
	}
	return &p, nil
}

func (t *memoryTx) FindOpenPayment(_ context.Context, bookingID string, paymentType models.PaymentType) (*models.Payment, error) {
	var found *models.Payment
	for _, p := range t.state.payments {
		if p.BookingID != bookingID || p.Type != paymentType || p.Status == models.VerificationRejected {
			continue
		}
		if found == nil || lessByTime(p.CreatedAt, found.CreatedAt, p.ID, found.ID) {
			p := p
			found = &p
		}
	}
	return found, nil
}

func (t *memoryTx) InsertPayment(_ context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	t.state.payments[p.ID] = *p
	return nil
}

func (t *memoryTx) UpdatePayment(_ context.Context, p *models.Payment) error {
	if _, ok := t.state.payments[p.ID]; !ok {
		return apperror.NotFound("payment %s not found", p.ID)
	}
	t.state.payments[p.ID] = *p
	return nil
}

// Contract statements
func (t *memoryTx) LockContract(_ context.Context, id string) (*models.Contract, error) {
	c, ok := t.state.contracts[id]
	if !ok {
		return nil, apperror.NotFound("contract %s not found", id)
	}
	return &c, nil
}

func (t *memoryTx) FindContractByBooking(_ context.Context, bookingID string) (*models.Contract, error) {
	for _, c := range t.state.contracts {
		if c.BookingID == bookingID {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) InsertContract(_ context.Context, c *models.Contract) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	t.state.contracts[c.ID] = *c
	return nil
}

func (t *memoryTx) UpdateContract(_ context.Context, c *models.Contract) error {
	if _, ok := t.state.contracts[c.ID]; !ok {
		return apperror.NotFound("contract %s not found", c.ID)
	}
	t.state.contracts[c.ID] = *c
	return nil
}

// Fee and notification statements
func (t *memoryTx) CurrentFee(_ context.Context) (*models.Fee, error) {
	if len(t.state.fees) == 0 {
		return nil, nil
	}
	f := t.state.fees[len(t.state.fees)-1]
	return &f, nil
}

func (t *memoryTx) InsertFee(_ context.Context, f *models.Fee) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	t.state.fees = append(t.state.fees, *f)
	return nil
}

func (t *memoryTx) InsertNotification(_ context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	t.state.notifications = append(t.state.notifications, *n)
	return nil
}
