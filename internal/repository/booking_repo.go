package repository

import (
	"context"
	"errors"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookingRepository) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ApplyProjection writes the derived paymentStatus onto the booking, and
// confirms it when the projector says so. Short transaction, row locked;
// audit entries are appended for whatever actually changed so re-running the
// projection stays quiet.
func (r *BookingRepository) ApplyProjection(ctx context.Context, bookingID uint, paymentStatus string, confirm bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if b.PaymentStatus != paymentStatus {
			prev := b.PaymentStatus
			b.PaymentStatus = paymentStatus
			if err := tx.Create(&models.AuditEntry{
				EntityType:    "booking_payment_status",
				EntityID:      b.ID,
				PreviousState: prev,
				NewState:      paymentStatus,
				Actor:         "projector",
			}).Error; err != nil {
				return err
			}
		}
		if confirm && b.Status == domain.BookingPending {
			b.Status = domain.BookingConfirmed
			if err := tx.Create(&models.AuditEntry{
				EntityType:    "booking",
				EntityID:      b.ID,
				PreviousState: domain.BookingPending,
				NewState:      domain.BookingConfirmed,
				Actor:         "projector",
			}).Error; err != nil {
				return err
			}
		}
		return tx.Save(&b).Error
	})
}
