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
)

// WebhookPayload is the normalized provider notification after signature
// verification. Providers differ in envelope; the handler maps them here.
type WebhookPayload struct {
	EventID      string `json:"event_id"`
	Provider     string `json:"provider"`
	Reference    string `json:"reference"`
	Status       string `json:"status"` // succeeded | failed
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Reconciler applies asynchronous provider notifications to the ledger. Each
// provider event id causes at most one transition, recorded durably so
// redelivery and restarts are safe. It shares the ledger transition function
// with the synchronous path, so either arrival order leaves the same state.
type Reconciler struct {
	payments PaymentStore
	bookings BookingStore
	events   EventStore
	notifier *NotificationService
}

func NewReconciler(payments PaymentStore, bookings BookingStore, events EventStore, notifier *NotificationService) *Reconciler {
	return &Reconciler{payments: payments, bookings: bookings, events: events, notifier: notifier}
}

func (rc *Reconciler) Handle(ctx context.Context, evt WebhookPayload) error {
	if evt.EventID == "" || evt.Reference == "" {
		return fmt.Errorf("%w: event id and reference are required", domain.ErrValidation)
	}
	var target string
	switch evt.Status {
	case "succeeded", "completed", "captured":
		target = domain.PaymentSucceeded
	case "failed", "declined", "expired":
		target = domain.PaymentFailed
	default:
		return fmt.Errorf("%w: unknown event status %q", domain.ErrValidation, evt.Status)
	}

	seen, err := rc.events.Seen(ctx, evt.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	p, err := rc.payments.GetByExternalRef(ctx, evt.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Acknowledge so the provider stops redelivering, but keep the
			// unmatched event on record.
			log.Printf("[webhook] no payment for reference %q (event %s)", evt.Reference, evt.EventID)
			return rc.events.MarkProcessed(ctx, &models.WebhookEvent{
				ProviderEventID: evt.EventID,
				Provider:        evt.Provider,
				Outcome:         "unmatched",
				ProcessedAt:     time.Now(),
			})
		}
		return err
	}

	// Late success after a local timeout-induced failure: never resurrected
	// as a normal success. Flag it for compensating handling instead.
	if p.Status == domain.PaymentFailed && target == domain.PaymentSucceeded {
		log.Printf("[webhook] late success for failed payment %d (event %s), flagging for compensation", p.ID, evt.EventID)
		// Event mark and audit entry commit together, so a crash here cannot
		// leave a redeliverable event with its entry already written.
		if err := rc.events.MarkProcessedWithAudit(ctx, &models.WebhookEvent{
			ProviderEventID: evt.EventID,
			Provider:        evt.Provider,
			PaymentID:       &p.ID,
			Outcome:         "late_success_flagged",
			ProcessedAt:     time.Now(),
		}, &models.AuditEntry{
			EntityType:    "payment",
			EntityID:      p.ID,
			PreviousState: domain.PaymentFailed,
			NewState:      "late_success_flagged",
			Actor:         "webhook:" + evt.Provider,
			CorrelationID: evt.EventID,
		}); err != nil {
			return err
		}
		rc.notifier.LateSuccess(p, evt.EventID)
		return nil
	}

	// The synchronous path already landed this state via a different source;
	// the event is absorbed without a second transition or audit entry.
	if p.Status == target {
		return rc.events.MarkProcessed(ctx, &models.WebhookEvent{
			ProviderEventID: evt.EventID,
			Provider:        evt.Provider,
			PaymentID:       &p.ID,
			Outcome:         "absorbed_" + target,
			ProcessedAt:     time.Now(),
		})
	}

	updated, applied, err := rc.payments.Transition(ctx, p.ID, target, ledger.TransitionMeta{
		EventID:      evt.EventID,
		Actor:        "webhook:" + evt.Provider,
		ErrorCode:    evt.ErrorCode,
		ErrorMessage: evt.ErrorMessage,
		ExternalRef:  evt.Reference,
	})
	if err != nil {
		// An illegal move here is a race-condition or integration bug and is
		// surfaced, never swallowed.
		log.Printf("[webhook] event %s for payment %d rejected: %v", evt.EventID, p.ID, err)
		return err
	}
	if applied {
		projectBooking(ctx, rc.payments, rc.bookings, updated.BookingID)
		if target == domain.PaymentSucceeded {
			rc.notifier.PaymentSucceeded(updated)
		} else {
			rc.notifier.PaymentFailed(updated)
		}
	}
	return nil
}
