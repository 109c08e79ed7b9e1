package ledger

import (
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
)

// legal maps each payment state to the set of states it may move to.
// pending -> processing -> {succeeded | failed}
// succeeded -> {partially_refunded | refunded}
// partially_refunded -> {partially_refunded | refunded}
var legal = map[string]map[string]bool{
	domain.PaymentPending: {
		domain.PaymentProcessing: true,
		// A charge that never reached the provider (validation at mark time,
		// registry miss) settles failed without passing through processing.
		domain.PaymentFailed: true,
	},
	domain.PaymentProcessing: {
		domain.PaymentSucceeded: true,
		domain.PaymentFailed:    true,
	},
	domain.PaymentSucceeded: {
		domain.PaymentPartiallyRefunded: true,
		domain.PaymentRefunded:          true,
	},
	domain.PaymentPartiallyRefunded: {
		// Another partial refund keeps the state; the cumulative amount moved.
		domain.PaymentPartiallyRefunded: true,
		domain.PaymentRefunded:          true,
	},
	domain.PaymentFailed:   {},
	domain.PaymentRefunded: {},
}

// LegalTransition reports whether a payment may move from one state to
// another. Repeating a transition for the same source event id is handled
// by the store's replay check, not here.
func LegalTransition(from, to string) bool {
	return legal[from][to]
}

// TransitionMeta carries everything a single ledger transition records:
// who asked for it, which provider event (if any) sourced it, and the
// normalized outcome details written onto the payment row.
type TransitionMeta struct {
	// EventID is the provider event id for webhook-sourced transitions.
	// Applying the same transition twice with the same EventID is a no-op
	// success; this is what makes reconciliation idempotent.
	EventID       string
	Actor         string
	CorrelationID string
	ErrorCode     string
	ErrorMessage  string
	// ExternalRef, when set, replaces the payment's external transaction id
	// with the provider's reference.
	ExternalRef string
	// Metadata is captured into the audit entry only (raw provider detail).
	Metadata string
}
