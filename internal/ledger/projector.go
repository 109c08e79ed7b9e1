package ledger

import (
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"
)

// ProjectPaymentStatus derives a booking's paymentStatus purely from its
// payment rows. The booking is never consulted and no external call is made,
// so the projection can be re-run at any time and always agrees with the
// ledger:
//
//	succeeded/partially_refunded/refunded: mirrors the single collecting payment
//	failed: no payment ever succeeded and the latest attempt failed
//	pending: everything else (no attempts, or one still in flight)
//
// Zero-amount rows (tokenized setup) never influence the projection.
func ProjectPaymentStatus(payments []models.Payment) string {
	var latest *models.Payment
	for i := range payments {
		p := &payments[i]
		if p.AmountCents == 0 {
			continue
		}
		switch p.Status {
		case domain.PaymentSucceeded:
			return domain.PayStatusSucceeded
		case domain.PaymentPartiallyRefunded:
			return domain.PayStatusPartiallyRefunded
		case domain.PaymentRefunded:
			return domain.PayStatusRefunded
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) || (p.CreatedAt.Equal(latest.CreatedAt) && p.ID > latest.ID) {
			latest = p
		}
	}
	if latest == nil {
		return domain.PayStatusPending
	}
	if latest.Status == domain.PaymentFailed {
		return domain.PayStatusFailed
	}
	return domain.PayStatusPending
}

// ShouldConfirm reports whether the booking itself moves pending -> confirmed:
// only on the first transition into a succeeded payment status.
func ShouldConfirm(bookingStatus, newPaymentStatus string) bool {
	return bookingStatus == domain.BookingPending && newPaymentStatus == domain.PayStatusSucceeded
}
