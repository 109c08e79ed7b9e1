package service

import (
	"context"
	"log"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/pkg/mq"
)

// NotificationService publishes terminal payment/refund outcomes for
// downstream consumers. Strictly fire-and-forget: a publish failure is
// logged and never rolls back a ledger transition. A nil publisher disables
// publishing entirely (development without a broker).
type NotificationService struct {
	pub *mq.Publisher
}

func NewNotificationService(pub *mq.Publisher) *NotificationService {
	return &NotificationService{pub: pub}
}

func (s *NotificationService) publish(key string, payload map[string]any) {
	if s == nil || s.pub == nil {
		return
	}
	if err := s.pub.PublishJSON(context.Background(), key, payload); err != nil {
		log.Printf("[notify] publish %s failed: %v", key, err)
	}
}

func (s *NotificationService) PaymentSucceeded(p *models.Payment) {
	s.publish("payment.succeeded", map[string]any{
		"payment_id":   p.ID,
		"booking_id":   p.BookingID,
		"amount_cents": p.AmountCents,
		"currency":     p.Currency,
		"provider":     p.Provider,
		"reference":    p.ExternalTransactionID,
	})
}

func (s *NotificationService) PaymentFailed(p *models.Payment) {
	s.publish("payment.failed", map[string]any{
		"payment_id": p.ID,
		"booking_id": p.BookingID,
		"provider":   p.Provider,
		"error_code": p.ErrorCode,
	})
}

func (s *NotificationService) RefundSettled(p *models.Payment, r *models.Refund) {
	s.publish("refund."+r.Status, map[string]any{
		"refund_id":    r.ID,
		"payment_id":   p.ID,
		"booking_id":   p.BookingID,
		"amount_cents": r.AmountCents,
		"reason":       r.Reason,
	})
}

// LateSuccess flags a provider-confirmed charge on a payment we already
// settled failed locally. Needs compensating handling (refund-on-arrival),
// never an automatic resurrection.
func (s *NotificationService) LateSuccess(p *models.Payment, providerEventID string) {
	s.publish("payment.late_success", map[string]any{
		"payment_id":        p.ID,
		"booking_id":        p.BookingID,
		"provider":          p.Provider,
		"provider_event_id": providerEventID,
		"amount_cents":      p.AmountCents,
	})
}
