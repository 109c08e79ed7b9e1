package service

import (
	"context"
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

// RefundProcessor creates refunds against succeeded payments. Validation and
// insertion happen in one transaction (the store re-reads the cumulative
// refunded amount under the payment row lock), the provider call runs
// outside any lock with the refund's own id as the idempotency token, and a
// provider failure leaves the payment untouched with the refund marked
// failed. No automatic retry.
type RefundProcessor struct {
	payments  PaymentStore
	refunds   RefundStore
	bookings  BookingStore
	providers *provider.Registry
	notifier  *NotificationService

	providerTimeout time.Duration
}

func NewRefundProcessor(payments PaymentStore, refunds RefundStore, bookings BookingStore, providers *provider.Registry, notifier *NotificationService, providerTimeout time.Duration) *RefundProcessor {
	return &RefundProcessor{
		payments:        payments,
		refunds:         refunds,
		bookings:        bookings,
		providers:       providers,
		notifier:        notifier,
		providerTimeout: providerTimeout,
	}
}

func (rp *RefundProcessor) Refund(ctx context.Context, paymentID uint, amountCents int64, reason, actor string) (*models.Refund, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: refund reason is required", domain.ErrValidation)
	}
	p, err := rp.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	ref, err := rp.refunds.CreatePending(ctx, p.ID, amountCents, reason)
	if err != nil {
		return nil, err
	}

	adapter, ok := rp.providers.Get(p.Provider)
	if !ok {
		_, _ = rp.refunds.Settle(ctx, ref.ID, domain.RefundFailed, "")
		return ref, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, p.Provider)
	}
	refunder, ok := adapter.(provider.Refunder)
	if !ok {
		_, _ = rp.refunds.Settle(ctx, ref.ID, domain.RefundFailed, "")
		return ref, fmt.Errorf("%w: %q does not support refunds", domain.ErrValidation, p.Provider)
	}

	cctx, cancel := context.WithTimeout(ctx, rp.providerTimeout)
	res, err := refunder.Refund(cctx, provider.RefundRequest{
		ExternalRef:      p.ExternalTransactionID,
		AmountCents:      amountCents,
		Currency:         p.Currency,
		Reason:           reason,
		IdempotencyToken: fmt.Sprintf("refund_%d", ref.ID),
	})
	cancel()
	if err != nil || res.Status != provider.StatusSucceeded {
		providerRef := ""
		code := provider.CodeUnavailable
		retryable := true
		if res != nil {
			providerRef = res.ProviderRef
			if res.ErrorCode != "" {
				code = res.ErrorCode
			}
			retryable = res.Retryable
		}
		failed, serr := rp.refunds.Settle(ctx, ref.ID, domain.RefundFailed, providerRef)
		if serr != nil {
			log.Printf("[refunds] settle failed refund %d: %v", ref.ID, serr)
			failed = ref
		}
		rp.notifier.RefundSettled(p, failed)
		if retryable {
			return failed, fmt.Errorf("%w: %s", domain.ErrProviderRetryable, code)
		}
		return failed, fmt.Errorf("%w: %s", domain.ErrProviderTerminal, code)
	}

	ref, err = rp.refunds.Settle(ctx, ref.ID, domain.RefundSucceeded, res.ProviderRef)
	if err != nil {
		return nil, err
	}
	total, err := rp.refunds.SumSucceeded(ctx, p.ID)
	if err != nil {
		return ref, err
	}
	target := domain.PaymentPartiallyRefunded
	if total >= p.AmountCents {
		target = domain.PaymentRefunded
	}
	updated, applied, err := rp.payments.Transition(ctx, p.ID, target, ledger.TransitionMeta{
		Actor:         actor,
		CorrelationID: uuid.NewString(),
		Metadata:      fmt.Sprintf(`{"refund_id":%d,"reason":%q}`, ref.ID, reason),
	})
	if err != nil {
		// A concurrent refund may have landed the same target first. This
		// refund's money still moved, so absorb the lost race.
		if errors.Is(err, domain.ErrInvalidTransition) {
			if current, gerr := rp.payments.GetByID(ctx, p.ID); gerr == nil && current.Status == target {
				rp.notifier.RefundSettled(current, ref)
				return ref, nil
			}
		}
		return ref, err
	}
	if applied {
		projectBooking(ctx, rp.payments, rp.bookings, updated.BookingID)
	}
	rp.notifier.RefundSettled(updated, ref)
	return ref, nil
}
