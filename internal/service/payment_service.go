package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/ledger"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/pkg/provider"

	"github.com/google/uuid"
)

// PaymentService owns the charge path: idempotency guard, provider dispatch,
// and settlement through the ledger. The pattern everywhere is mark
// processing (transaction 1), call the provider outside any lock with an
// enforced timeout, then apply the terminal result (transaction 2, which
// re-validates the transition).
type PaymentService struct {
	payments  PaymentStore
	bookings  BookingStore
	refunds   RefundStore
	providers *provider.Registry
	notifier  *NotificationService

	providerTimeout time.Duration
	orderExpiry     time.Duration
}

func NewPaymentService(payments PaymentStore, bookings BookingStore, refunds RefundStore, providers *provider.Registry, notifier *NotificationService, providerTimeout, orderExpiry time.Duration) *PaymentService {
	return &PaymentService{
		payments:        payments,
		bookings:        bookings,
		refunds:         refunds,
		providers:       providers,
		notifier:        notifier,
		providerTimeout: providerTimeout,
		orderExpiry:     orderExpiry,
	}
}

// DeriveKey builds the stable dedup key for a payment attempt: bookingId +
// provider + the client nonce when one is supplied, otherwise bookingId +
// provider + amount + currency. Hashed so the unique index is fixed-width.
func DeriveKey(bookingID uint, providerName, nonce string, amountCents int64, currency string) string {
	var seed string
	if nonce != "" {
		seed = fmt.Sprintf("%d|%s|%s", bookingID, providerName, nonce)
	} else {
		seed = fmt.Sprintf("%d|%s|%d|%s", bookingID, providerName, amountCents, currency)
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

type CreatePaymentInput struct {
	BookingID   uint
	Provider    string
	Method      string
	AmountCents int64
	Currency    string
	Nonce       string
	Actor       string
}

// CreatePayment is idempotent per derived key. The bool result is true when
// this call created the attempt; replays return the original row, and a key
// whose charge is still in flight returns it with ErrChargeInFlight.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*models.Payment, bool, error) {
	if in.AmountCents <= 0 {
		return nil, false, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if len(in.Currency) != 3 {
		return nil, false, fmt.Errorf("%w: currency must be a 3-letter code", domain.ErrValidation)
	}
	if !domain.ValidMethod(in.Method) {
		return nil, false, fmt.Errorf("%w: unknown method %q", domain.ErrValidation, in.Method)
	}
	adapter, ok := s.providers.Get(in.Provider)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, in.Provider)
	}
	booking, err := s.bookings.GetByID(ctx, in.BookingID)
	if err != nil {
		return nil, false, fmt.Errorf("booking %d: %w", in.BookingID, err)
	}
	if booking.Currency != in.Currency {
		return nil, false, fmt.Errorf("%w: booking is priced in %s", domain.ErrValidation, booking.Currency)
	}

	key := DeriveKey(in.BookingID, in.Provider, in.Nonce, in.AmountCents, in.Currency)
	attempt := &models.Payment{
		BookingID:   in.BookingID,
		Provider:    in.Provider,
		Method:      in.Method,
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
		Status:      domain.PaymentPending,
		// Placeholder kept unique until the provider hands us its reference.
		ExternalTransactionID: "loc_" + uuid.NewString(),
		IdempotencyKey:        key,
	}
	p, isNew, err := s.payments.CreateOrGet(ctx, attempt)
	if err != nil {
		return nil, false, err
	}
	if !isNew {
		switch p.Status {
		case domain.PaymentPending, domain.PaymentProcessing:
			return p, false, domain.ErrChargeInFlight
		default:
			// Replay of a settled attempt: same record, no second charge.
			return p, false, nil
		}
	}

	corr := uuid.NewString()
	p, _, err = s.payments.Transition(ctx, p.ID, domain.PaymentProcessing, ledger.TransitionMeta{
		Actor:         in.Actor,
		CorrelationID: corr,
	})
	if err != nil {
		return nil, true, err
	}

	req := provider.ChargeRequest{
		BookingID:        in.BookingID,
		PaymentID:        p.ID,
		AmountCents:      in.AmountCents,
		Currency:         in.Currency,
		Method:           in.Method,
		Description:      fmt.Sprintf("booking %d", in.BookingID),
		IdempotencyToken: key,
	}

	switch adapter.Model() {
	case domain.ModelSyncCharge:
		charger, ok := adapter.(provider.Charger)
		if !ok {
			return s.settle(ctx, p, provider.FailureResult(provider.CodeUnavailable, true), in.Actor, corr)
		}
		res := s.callCharge(ctx, func(cctx context.Context) (*provider.ChargeResult, error) {
			return charger.Charge(cctx, req)
		})
		return s.settle(ctx, p, res, in.Actor, corr)

	case domain.ModelOrderCapture:
		oc, ok := adapter.(provider.OrderCapturer)
		if !ok {
			return s.settle(ctx, p, provider.FailureResult(provider.CodeUnavailable, true), in.Actor, corr)
		}
		res := s.callCharge(ctx, func(cctx context.Context) (*provider.ChargeResult, error) {
			return oc.CreateOrder(cctx, req)
		})
		if res.Status != provider.StatusPending {
			return s.settle(ctx, p, res, in.Actor, corr)
		}
		expires := res.OrderExpiresAt
		if expires == nil {
			t := time.Now().Add(s.orderExpiry)
			expires = &t
		}
		if err := s.payments.UpdateOrderRef(ctx, p.ID, res.ExternalRef, expires); err != nil {
			return nil, true, err
		}
		p.ExternalTransactionID = res.ExternalRef
		p.OrderExpiresAt = expires
		return p, true, nil

	default:
		return nil, true, fmt.Errorf("%w: %q cannot charge", domain.ErrValidation, in.Provider)
	}
}

// CapturePayment finalizes an order/capture payment. Capturing an already
// succeeded payment returns it unchanged; capture after the order expiry is
// a terminal failure.
func (s *PaymentService) CapturePayment(ctx context.Context, externalRef, actor string) (*models.Payment, error) {
	p, err := s.payments.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PaymentSucceeded {
		return p, nil
	}
	if p.Status != domain.PaymentProcessing {
		return nil, fmt.Errorf("%w: payment %d is %s, not awaiting capture", domain.ErrInvalidTransition, p.ID, p.Status)
	}
	adapter, ok := s.providers.Get(p.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, p.Provider)
	}
	oc, ok := adapter.(provider.OrderCapturer)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an order/capture provider", domain.ErrValidation, p.Provider)
	}
	corr := uuid.NewString()
	if p.OrderExpiresAt != nil && time.Now().After(*p.OrderExpiresAt) {
		res := &provider.ChargeResult{Status: provider.StatusFailed, ErrorCode: provider.CodeOrderExpired}
		settled, _, err := s.settle(ctx, p, res, actor, corr)
		if err != nil {
			return settled, err
		}
		return settled, fmt.Errorf("%w: order expired before capture", domain.ErrProviderTerminal)
	}
	res := s.callCharge(ctx, func(cctx context.Context) (*provider.ChargeResult, error) {
		return oc.Capture(cctx, externalRef, p.IdempotencyKey)
	})
	settled, _, err := s.settle(ctx, p, res, actor, corr)
	return settled, err
}

type SetupTokenInput struct {
	BookingID uint
	Provider  string
	Method    string
	Nonce     string
	Actor     string
}

// SetupToken runs a tokenized-setup attempt: no money moves, but the attempt
// is a zero-amount ledger record so it is audited like any charge. The
// projector ignores zero-amount rows.
func (s *PaymentService) SetupToken(ctx context.Context, in SetupTokenInput) (*models.Payment, string, error) {
	if !domain.ValidMethod(in.Method) {
		return nil, "", fmt.Errorf("%w: unknown method %q", domain.ErrValidation, in.Method)
	}
	adapter, ok := s.providers.Get(in.Provider)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", domain.ErrUnknownProvider, in.Provider)
	}
	tokenizer, ok := adapter.(provider.Tokenizer)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q does not support token setup", domain.ErrValidation, in.Provider)
	}
	booking, err := s.bookings.GetByID(ctx, in.BookingID)
	if err != nil {
		return nil, "", fmt.Errorf("booking %d: %w", in.BookingID, err)
	}
	nonce := in.Nonce
	if nonce == "" {
		nonce = "setup_" + uuid.NewString()
	}
	key := DeriveKey(in.BookingID, in.Provider, nonce, 0, booking.Currency)
	attempt := &models.Payment{
		BookingID:             in.BookingID,
		Provider:              in.Provider,
		Method:                in.Method,
		AmountCents:           0,
		Currency:              booking.Currency,
		Status:                domain.PaymentPending,
		ExternalTransactionID: "loc_" + uuid.NewString(),
		IdempotencyKey:        key,
	}
	p, isNew, err := s.payments.CreateOrGet(ctx, attempt)
	if err != nil {
		return nil, "", err
	}
	if !isNew {
		if p.Status == domain.PaymentPending || p.Status == domain.PaymentProcessing {
			return p, "", domain.ErrChargeInFlight
		}
		return p, "", nil
	}
	corr := uuid.NewString()
	p, _, err = s.payments.Transition(ctx, p.ID, domain.PaymentProcessing, ledger.TransitionMeta{Actor: in.Actor, CorrelationID: corr})
	if err != nil {
		return nil, "", err
	}
	cctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	res, err := tokenizer.SetupToken(cctx, provider.TokenRequest{
		BookingID:        in.BookingID,
		Method:           in.Method,
		IdempotencyToken: key,
	})
	if err != nil {
		code := provider.CodeUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = provider.CodeTimeout
		}
		failed, _, serr := s.settle(ctx, p, provider.FailureResult(code, true), in.Actor, corr)
		if serr != nil && !errors.Is(serr, domain.ErrProviderRetryable) {
			// The settle itself failed, not just the attempt.
			return nil, "", serr
		}
		return failed, "", serr
	}
	p, _, err = s.payments.Transition(ctx, p.ID, domain.PaymentSucceeded, ledger.TransitionMeta{
		Actor:         in.Actor,
		CorrelationID: corr,
		ExternalRef:   res.ExternalRef,
	})
	if err != nil {
		return nil, "", err
	}
	return p, res.Token, nil
}

// BookingPayments is the read-only projection exposed to callers.
type BookingPayments struct {
	Payments []models.Payment `json:"payments"`
	Refunds  []models.Refund  `json:"refunds"`
	Summary  PaymentSummary   `json:"summary"`
}

type PaymentSummary struct {
	PaymentStatus       string `json:"payment_status"`
	TotalPaidCents      int64  `json:"total_paid_cents"`
	TotalRefundedCents  int64  `json:"total_refunded_cents"`
	OutstandingAttempts int    `json:"outstanding_attempts"`
}

func (s *PaymentService) GetBookingPayments(ctx context.Context, bookingID uint) (*BookingPayments, error) {
	if _, err := s.bookings.GetByID(ctx, bookingID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	refunds, err := s.refunds.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	summary := PaymentSummary{PaymentStatus: ledger.ProjectPaymentStatus(payments)}
	for _, p := range payments {
		switch p.Status {
		case domain.PaymentSucceeded, domain.PaymentPartiallyRefunded, domain.PaymentRefunded:
			summary.TotalPaidCents += p.AmountCents
		case domain.PaymentPending, domain.PaymentProcessing:
			summary.OutstandingAttempts++
		}
	}
	for _, r := range refunds {
		if r.Status == domain.RefundSucceeded {
			summary.TotalRefundedCents += r.AmountCents
		}
	}
	return &BookingPayments{Payments: payments, Refunds: refunds, Summary: summary}, nil
}

// callCharge runs one provider call under the enforced timeout and collapses
// transport errors into the normalized failure variant, so the ledger always
// receives exactly one terminal result per attempt.
func (s *PaymentService) callCharge(ctx context.Context, call func(context.Context) (*provider.ChargeResult, error)) *provider.ChargeResult {
	cctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	res, err := call(cctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return provider.FailureResult(provider.CodeTimeout, true)
		}
		log.Printf("[payments] provider call error: %v", err)
		return provider.FailureResult(provider.CodeUnavailable, true)
	}
	return res
}

// settle applies a terminal provider result through the ledger. A lost race
// with the webhook path (the row already reached the same terminal state via
// another event) is absorbed as success.
func (s *PaymentService) settle(ctx context.Context, p *models.Payment, res *provider.ChargeResult, actor, corr string) (*models.Payment, bool, error) {
	var target string
	switch res.Status {
	case provider.StatusSucceeded:
		target = domain.PaymentSucceeded
	case provider.StatusFailed:
		target = domain.PaymentFailed
	default:
		return nil, true, fmt.Errorf("%w: provider returned non-terminal result", domain.ErrValidation)
	}
	updated, applied, err := s.payments.Transition(ctx, p.ID, target, ledger.TransitionMeta{
		Actor:         actor,
		CorrelationID: corr,
		ErrorCode:     res.ErrorCode,
		ErrorMessage:  errorMessageFor(res.ErrorCode),
		ExternalRef:   res.ExternalRef,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			current, gerr := s.payments.GetByID(ctx, p.ID)
			if gerr == nil && current.Status == target {
				return current, false, terminalError(res)
			}
		}
		return nil, true, err
	}
	if applied {
		projectBooking(ctx, s.payments, s.bookings, updated.BookingID)
		if target == domain.PaymentSucceeded {
			s.notifier.PaymentSucceeded(updated)
		} else {
			s.notifier.PaymentFailed(updated)
		}
	}
	return updated, true, terminalError(res)
}

// terminalError maps a settled failure onto the caller-facing taxonomy.
func terminalError(res *provider.ChargeResult) error {
	if res.Status != provider.StatusFailed {
		return nil
	}
	if res.Retryable {
		return fmt.Errorf("%w: %s", domain.ErrProviderRetryable, res.ErrorCode)
	}
	return fmt.Errorf("%w: %s", domain.ErrProviderTerminal, res.ErrorCode)
}

func errorMessageFor(code string) string {
	switch code {
	case provider.CodeDeclined:
		return "the payment was declined"
	case provider.CodeInvalidCard:
		return "the card details were rejected"
	case provider.CodeTimeout:
		return "the provider did not respond in time"
	case provider.CodeUnavailable:
		return "the provider is temporarily unavailable"
	case provider.CodeOrderExpired:
		return "the order expired before capture"
	case "":
		return ""
	default:
		return "the payment could not be completed"
	}
}

// projectBooking recomputes the booking's paymentStatus from the ledger and
// writes it. Runs after a committed transition; a failure here is loud but
// does not undo the ledger.
func projectBooking(ctx context.Context, payments PaymentStore, bookings BookingStore, bookingID uint) {
	rows, err := payments.ListByBooking(ctx, bookingID)
	if err != nil {
		log.Printf("[ledger] projection read failed for booking %d: %v", bookingID, err)
		return
	}
	status := ledger.ProjectPaymentStatus(rows)
	booking, err := bookings.GetByID(ctx, bookingID)
	if err != nil {
		log.Printf("[ledger] projection lookup failed for booking %d: %v", bookingID, err)
		return
	}
	confirm := ledger.ShouldConfirm(booking.Status, status)
	if err := bookings.ApplyProjection(ctx, bookingID, status, confirm); err != nil {
		log.Printf("[ledger] projection write failed for booking %d: %v", bookingID, err)
	}
}
