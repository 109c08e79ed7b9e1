package models

import (
	"time"

	"gorm.io/gorm"
)

// Booking is owned by the booking subsystem. The payment engine reads it and
// updates PaymentStatus (plus Status pending -> confirmed on first success);
// it is never deleted, cancellation is a status.
type Booking struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	GuestRef             string         `gorm:"size:64;index" json:"guest_ref"`
	Status               string         `gorm:"size:20;not null;default:'pending';index" json:"status"`
	PaymentStatus        string         `gorm:"size:20;not null;default:'pending';index" json:"payment_status"`
	TotalAmountCents     int64          `gorm:"not null" json:"total_amount_cents"`
	Currency             string         `gorm:"size:3;default:'USD'" json:"currency"`
	CancellationDeadline *time.Time     `json:"cancellation_deadline"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Booking) TableName() string {
	return "bookings"
}
