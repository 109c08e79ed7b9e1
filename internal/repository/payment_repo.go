package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/ledger"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateOrGet is the idempotency guard's insert-or-fetch. It attempts the
// insert and lets the composite unique index on (booking_id, idempotency_key)
// decide the race: exactly one caller creates the row, every other caller
// gets the winner's row back with isNew=false. There is deliberately no
// prior existence check.
func (r *PaymentRepository) CreateOrGet(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
	err := r.db.WithContext(ctx).Create(p).Error
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}
	var existing models.Payment
	if err := r.db.WithContext(ctx).
		Where("booking_id = ? AND idempotency_key = ?", p.BookingID, p.IdempotencyKey).
		First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("external_transaction_id = ?", ref).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID uint) ([]models.Payment, error) {
	var out []models.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// UpdateOrderRef stores the provider's order reference and expiry on a
// payment awaiting capture. No state change.
func (r *PaymentRepository) UpdateOrderRef(ctx context.Context, paymentID uint, ref string, expiresAt *time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"external_transaction_id": ref,
			"order_expires_at":        expiresAt,
		}).Error
}

// Transition is the only way a payment row changes state. One transaction:
// lock the row, check the source event for replay, validate legality, write
// the new state, append the audit entry, and record the event id. Replaying
// the same EventID is a no-op success; an illegal move surfaces
// ErrInvalidTransition and changes nothing.
func (r *PaymentRepository) Transition(ctx context.Context, paymentID uint, to string, meta ledger.TransitionMeta) (*models.Payment, bool, error) {
	var p models.Payment
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		// Replay check runs under the row lock: a concurrent delivery of the
		// same event commits its row before this lock is granted, so the
		// loser reliably no-ops instead of tripping the legality check.
		if meta.EventID != "" {
			var seen int64
			if err := tx.Model(&models.WebhookEvent{}).
				Where("provider_event_id = ?", meta.EventID).
				Count(&seen).Error; err != nil {
				return err
			}
			if seen > 0 {
				return nil
			}
		}
		if !ledger.LegalTransition(p.Status, to) {
			return fmt.Errorf("%w: payment %d %s -> %s", domain.ErrInvalidTransition, p.ID, p.Status, to)
		}
		prev := p.Status
		now := time.Now()
		p.Status = to
		if meta.ErrorCode != "" {
			p.ErrorCode = meta.ErrorCode
			p.ErrorMessage = meta.ErrorMessage
		}
		if meta.ExternalRef != "" {
			p.ExternalTransactionID = meta.ExternalRef
		}
		if to == domain.PaymentSucceeded {
			p.CompletedAt = &now
		}
		if err := tx.Save(&p).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.AuditEntry{
			EntityType:    "payment",
			EntityID:      p.ID,
			PreviousState: prev,
			NewState:      to,
			Actor:         meta.Actor,
			CorrelationID: meta.CorrelationID,
			Metadata:      meta.Metadata,
		}).Error; err != nil {
			return err
		}
		if meta.EventID != "" {
			if err := tx.Create(&models.WebhookEvent{
				ProviderEventID: meta.EventID,
				Provider:        p.Provider,
				PaymentID:       &p.ID,
				Outcome:         to,
				ProcessedAt:     now,
			}).Error; err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &p, applied, nil
}
