package service

import (
	"context"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/ledger"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"
)

// Store contracts consumed by the services. internal/repository provides the
// MySQL-backed implementations; tests run against in-memory ones.

type PaymentStore interface {
	// CreateOrGet is the guard's atomic insert-or-fetch keyed on
	// (bookingID, idempotencyKey). isNew is true for the caller that won.
	CreateOrGet(ctx context.Context, p *models.Payment) (payment *models.Payment, isNew bool, err error)
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error)
	ListByBooking(ctx context.Context, bookingID uint) ([]models.Payment, error)
	UpdateOrderRef(ctx context.Context, paymentID uint, ref string, expiresAt *time.Time) error
	// Transition atomically applies one state change; applied is false when
	// meta.EventID was already processed (replay no-op).
	Transition(ctx context.Context, paymentID uint, to string, meta ledger.TransitionMeta) (payment *models.Payment, applied bool, err error)
}

type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uint) (*models.Booking, error)
	ApplyProjection(ctx context.Context, bookingID uint, paymentStatus string, confirm bool) error
}

type RefundStore interface {
	CreatePending(ctx context.Context, paymentID uint, amountCents int64, reason string) (*models.Refund, error)
	Settle(ctx context.Context, refundID uint, status, providerRef string) (*models.Refund, error)
	SumSucceeded(ctx context.Context, paymentID uint) (int64, error)
	ListByPayment(ctx context.Context, paymentID uint) ([]models.Refund, error)
	ListByBooking(ctx context.Context, bookingID uint) ([]models.Refund, error)
}

type EventStore interface {
	Seen(ctx context.Context, providerEventID string) (bool, error)
	MarkProcessed(ctx context.Context, evt *models.WebhookEvent) error
	// MarkProcessedWithAudit records the event and its audit entry
	// atomically, so redelivery cannot duplicate the entry.
	MarkProcessedWithAudit(ctx context.Context, evt *models.WebhookEvent, entry *models.AuditEntry) error
}

type AuditStore interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	ListByEntity(ctx context.Context, entityType string, entityID uint) ([]models.AuditEntry, error)
}
