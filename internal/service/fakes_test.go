package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/ledger"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/pkg/provider"
)

// memDB holds all in-memory state one scenario shares. The store wrappers
// below implement the same contracts and the same transition/replay/reserve
// semantics as the MySQL repositories, minus SQL.
type memDB struct {
	mu sync.Mutex

	bookings map[uint]*models.Booking
	payments map[uint]*models.Payment
	keyIndex map[string]uint // "bookingID|idempotencyKey" -> payment id
	refunds  map[uint]*models.Refund
	events   map[string]*models.WebhookEvent
	audits   []models.AuditEntry

	seq uint
	now time.Time
}

func newMemDB() *memDB {
	return &memDB{
		bookings: make(map[uint]*models.Booking),
		payments: make(map[uint]*models.Payment),
		keyIndex: make(map[string]uint),
		refunds:  make(map[uint]*models.Refund),
		events:   make(map[string]*models.WebhookEvent),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so CreatedAt ordering is deterministic.
func (d *memDB) tick() time.Time {
	d.now = d.now.Add(time.Millisecond)
	return d.now
}

func (d *memDB) nextID() uint {
	d.seq++
	return d.seq
}

func (d *memDB) auditCount(entityType string, entityID uint) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.audits {
		if e.EntityType == entityType && e.EntityID == entityID {
			n++
		}
	}
	return n
}

type memPayments struct{ db *memDB }

func (s *memPayments) CreateOrGet(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := fmt.Sprintf("%d|%s", p.BookingID, p.IdempotencyKey)
	if id, ok := s.db.keyIndex[key]; ok {
		cp := *s.db.payments[id]
		return &cp, false, nil
	}
	p.ID = s.db.nextID()
	p.CreatedAt = s.db.tick()
	p.UpdatedAt = p.CreatedAt
	stored := *p
	s.db.payments[p.ID] = &stored
	s.db.keyIndex[key] = p.ID
	cp := stored
	return &cp, true, nil
}

func (s *memPayments) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPayments) GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.payments {
		if p.ExternalTransactionID == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memPayments) ListByBooking(ctx context.Context, bookingID uint) ([]models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Payment
	for _, p := range s.db.payments {
		if p.BookingID == bookingID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memPayments) UpdateOrderRef(ctx context.Context, paymentID uint, ref string, expiresAt *time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payments[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	p.ExternalTransactionID = ref
	p.OrderExpiresAt = expiresAt
	return nil
}

func (s *memPayments) Transition(ctx context.Context, paymentID uint, to string, meta ledger.TransitionMeta) (*models.Payment, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payments[paymentID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if meta.EventID != "" {
		if _, seen := s.db.events[meta.EventID]; seen {
			cp := *p
			return &cp, false, nil
		}
	}
	if !ledger.LegalTransition(p.Status, to) {
		return nil, false, fmt.Errorf("%w: payment %d %s -> %s", domain.ErrInvalidTransition, p.ID, p.Status, to)
	}
	prev := p.Status
	now := s.db.tick()
	p.Status = to
	p.UpdatedAt = now
	if meta.ErrorCode != "" {
		p.ErrorCode = meta.ErrorCode
		p.ErrorMessage = meta.ErrorMessage
	}
	if meta.ExternalRef != "" {
		p.ExternalTransactionID = meta.ExternalRef
	}
	if to == domain.PaymentSucceeded {
		t := now
		p.CompletedAt = &t
	}
	s.db.audits = append(s.db.audits, models.AuditEntry{
		EntityType:    "payment",
		EntityID:      p.ID,
		PreviousState: prev,
		NewState:      to,
		Actor:         meta.Actor,
		CorrelationID: meta.CorrelationID,
		Metadata:      meta.Metadata,
		CreatedAt:     now,
	})
	if meta.EventID != "" {
		pid := p.ID
		s.db.events[meta.EventID] = &models.WebhookEvent{
			ProviderEventID: meta.EventID,
			Provider:        p.Provider,
			PaymentID:       &pid,
			Outcome:         to,
			ProcessedAt:     now,
		}
	}
	cp := *p
	return &cp, true, nil
}

type memBookings struct{ db *memDB }

func (s *memBookings) Create(ctx context.Context, b *models.Booking) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b.ID = s.db.nextID()
	b.CreatedAt = s.db.tick()
	b.UpdatedAt = b.CreatedAt
	stored := *b
	s.db.bookings[b.ID] = &stored
	return nil
}

func (s *memBookings) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memBookings) ApplyProjection(ctx context.Context, bookingID uint, paymentStatus string, confirm bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[bookingID]
	if !ok {
		return domain.ErrNotFound
	}
	b.PaymentStatus = paymentStatus
	if confirm {
		b.Status = domain.BookingConfirmed
	}
	b.UpdatedAt = s.db.tick()
	return nil
}

type memRefunds struct{ db *memDB }

func (s *memRefunds) CreatePending(ctx context.Context, paymentID uint, amountCents int64, reason string) (*models.Refund, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.Status != domain.PaymentSucceeded && p.Status != domain.PaymentPartiallyRefunded {
		return nil, fmt.Errorf("%w: cannot refund payment %d in state %s", domain.ErrInvalidTransition, p.ID, p.Status)
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
	}
	var reserved int64
	for _, r := range s.db.refunds {
		if r.PaymentID == paymentID && (r.Status == domain.RefundSucceeded || r.Status == domain.RefundPending) {
			reserved += r.AmountCents
		}
	}
	if amountCents+reserved > p.AmountCents {
		return nil, fmt.Errorf("%w: %d + %d already refunded exceeds %d", domain.ErrOverRefund, amountCents, reserved, p.AmountCents)
	}
	ref := &models.Refund{
		ID:          s.db.nextID(),
		PaymentID:   paymentID,
		AmountCents: amountCents,
		Status:      domain.RefundPending,
		Reason:      reason,
		CreatedAt:   s.db.tick(),
	}
	s.db.refunds[ref.ID] = ref
	cp := *ref
	return &cp, nil
}

func (s *memRefunds) Settle(ctx context.Context, refundID uint, status, providerRef string) (*models.Refund, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ref, ok := s.db.refunds[refundID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if ref.Status != domain.RefundPending {
		return nil, fmt.Errorf("%w: refund %d already %s", domain.ErrInvalidTransition, ref.ID, ref.Status)
	}
	now := s.db.tick()
	ref.Status = status
	ref.ProviderRef = providerRef
	if status == domain.RefundSucceeded {
		t := now
		ref.CompletedAt = &t
	}
	cp := *ref
	return &cp, nil
}

func (s *memRefunds) SumSucceeded(ctx context.Context, paymentID uint) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var sum int64
	for _, r := range s.db.refunds {
		if r.PaymentID == paymentID && r.Status == domain.RefundSucceeded {
			sum += r.AmountCents
		}
	}
	return sum, nil
}

func (s *memRefunds) ListByPayment(ctx context.Context, paymentID uint) ([]models.Refund, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Refund
	for _, r := range s.db.refunds {
		if r.PaymentID == paymentID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memRefunds) ListByBooking(ctx context.Context, bookingID uint) ([]models.Refund, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Refund
	for _, r := range s.db.refunds {
		if p, ok := s.db.payments[r.PaymentID]; ok && p.BookingID == bookingID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memEvents struct{ db *memDB }

func (s *memEvents) Seen(ctx context.Context, providerEventID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.db.events[providerEventID]
	return ok, nil
}

func (s *memEvents) MarkProcessed(ctx context.Context, evt *models.WebhookEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.events[evt.ProviderEventID]; ok {
		return nil
	}
	s.db.events[evt.ProviderEventID] = evt
	return nil
}

func (s *memEvents) MarkProcessedWithAudit(ctx context.Context, evt *models.WebhookEvent, entry *models.AuditEntry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.events[evt.ProviderEventID]; ok {
		return nil
	}
	s.db.events[evt.ProviderEventID] = evt
	entry.CreatedAt = s.db.tick()
	s.db.audits = append(s.db.audits, *entry)
	return nil
}

type memAudit struct{ db *memDB }

func (s *memAudit) Append(ctx context.Context, e *models.AuditEntry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e.CreatedAt = s.db.tick()
	s.db.audits = append(s.db.audits, *e)
	return nil
}

func (s *memAudit) ListByEntity(ctx context.Context, entityType string, entityID uint) ([]models.AuditEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range s.db.audits {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fixture wires one shared memDB behind all five store contracts.
type fixture struct {
	db       *memDB
	payments *memPayments
	bookings *memBookings
	refunds  *memRefunds
	events   *memEvents
	audit    *memAudit
}

func newFixture() *fixture {
	db := newMemDB()
	return &fixture{
		db:       db,
		payments: &memPayments{db: db},
		bookings: &memBookings{db: db},
		refunds:  &memRefunds{db: db},
		events:   &memEvents{db: db},
		audit:    &memAudit{db: db},
	}
}

func (f *fixture) booking(amountCents int64, currency string) *models.Booking {
	b := &models.Booking{
		GuestRef:         "guest-1",
		Status:           domain.BookingPending,
		PaymentStatus:    domain.PayStatusPending,
		TotalAmountCents: amountCents,
		Currency:         currency,
	}
	if err := f.bookings.Create(context.Background(), b); err != nil {
		panic(err)
	}
	return b
}

func (f *fixture) paymentService(providers *provider.Registry) *PaymentService {
	return NewPaymentService(f.payments, f.bookings, f.refunds, providers, NewNotificationService(nil), time.Second, 30*time.Minute)
}

func (f *fixture) refundProcessor(providers *provider.Registry) *RefundProcessor {
	return NewRefundProcessor(f.payments, f.refunds, f.bookings, providers, NewNotificationService(nil), time.Second)
}

func (f *fixture) reconciler() *Reconciler {
	return NewReconciler(f.payments, f.bookings, f.events, NewNotificationService(nil))
}

// fakeProvider scripts provider behavior per test. It implements every
// capability interface; the service dispatches by Model(), so unused
// functions stay nil.
type fakeProvider struct {
	name  string
	model string

	charge      func(provider.ChargeRequest) (*provider.ChargeResult, error)
	createOrder func(provider.ChargeRequest) (*provider.ChargeResult, error)
	capture     func(externalRef, idempotencyToken string) (*provider.ChargeResult, error)
	setupToken  func(provider.TokenRequest) (*provider.TokenResult, error)
	refund      func(provider.RefundRequest) (*provider.RefundResult, error)

	chargeCalls  int
	orderCalls   int
	captureCalls int
	refundCalls  int
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return f.model }

func (f *fakeProvider) Charge(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	f.chargeCalls++
	return f.charge(req)
}

func (f *fakeProvider) CreateOrder(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	f.orderCalls++
	return f.createOrder(req)
}

func (f *fakeProvider) Capture(ctx context.Context, externalRef, idempotencyToken string) (*provider.ChargeResult, error) {
	f.captureCalls++
	return f.capture(externalRef, idempotencyToken)
}

func (f *fakeProvider) SetupToken(ctx context.Context, req provider.TokenRequest) (*provider.TokenResult, error) {
	return f.setupToken(req)
}

func (f *fakeProvider) Refund(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	f.refundCalls++
	return f.refund(req)
}

func syncProvider(name string, charge func(provider.ChargeRequest) (*provider.ChargeResult, error)) *fakeProvider {
	return &fakeProvider{name: name, model: domain.ModelSyncCharge, charge: charge}
}
