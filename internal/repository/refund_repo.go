package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// CreatePending validates and inserts a refund in one transaction. The
// payment row is locked so concurrent refunds serialize here, and the
// cumulative amount is re-read inside the same transaction that inserts the
// row. Pending refunds reserve their amount until they settle failed, so two
// in-flight refunds cannot jointly exceed the payment.
func (r *RefundRepository) CreatePending(ctx context.Context, paymentID uint, amountCents int64, reason string) (*models.Refund, error) {
	var ref models.Refund
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if p.Status != domain.PaymentSucceeded && p.Status != domain.PaymentPartiallyRefunded {
			return fmt.Errorf("%w: cannot refund payment %d in state %s", domain.ErrInvalidTransition, p.ID, p.Status)
		}
		if amountCents <= 0 {
			return fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
		}
		var reserved int64
		if err := tx.Model(&models.Refund{}).
			Where("payment_id = ? AND status IN ?", paymentID, []string{domain.RefundSucceeded, domain.RefundPending}).
			Select("COALESCE(SUM(amount_cents), 0)").
			Scan(&reserved).Error; err != nil {
			return err
		}
		if amountCents+reserved > p.AmountCents {
			return fmt.Errorf("%w: %d + %d already refunded exceeds %d", domain.ErrOverRefund, amountCents, reserved, p.AmountCents)
		}
		ref = models.Refund{
			PaymentID:   paymentID,
			AmountCents: amountCents,
			Status:      domain.RefundPending,
			Reason:      reason,
		}
		return tx.Create(&ref).Error
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// Settle moves a pending refund to its terminal state. Succeeded refunds are
// immutable afterwards.
func (r *RefundRepository) Settle(ctx context.Context, refundID uint, status, providerRef string) (*models.Refund, error) {
	var ref models.Refund
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ref, refundID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if ref.Status != domain.RefundPending {
			return fmt.Errorf("%w: refund %d already %s", domain.ErrInvalidTransition, ref.ID, ref.Status)
		}
		prev := ref.Status
		now := time.Now()
		ref.Status = status
		ref.ProviderRef = providerRef
		if status == domain.RefundSucceeded {
			ref.CompletedAt = &now
		}
		if err := tx.Save(&ref).Error; err != nil {
			return err
		}
		return tx.Create(&models.AuditEntry{
			EntityType:    "refund",
			EntityID:      ref.ID,
			PreviousState: prev,
			NewState:      status,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// SumSucceeded returns the total already refunded for a payment.
func (r *RefundRepository) SumSucceeded(ctx context.Context, paymentID uint) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("payment_id = ? AND status = ?", paymentID, domain.RefundSucceeded).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *RefundRepository) ListByPayment(ctx context.Context, paymentID uint) ([]models.Refund, error) {
	var out []models.Refund
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *RefundRepository) ListByBooking(ctx context.Context, bookingID uint) ([]models.Refund, error) {
	var out []models.Refund
	err := r.db.WithContext(ctx).
		Joins("JOIN payments ON payments.id = refunds.payment_id").
		Where("payments.booking_id = ?", bookingID).
		Order("refunds.created_at ASC").
		Find(&out).Error
	return out, err
}
