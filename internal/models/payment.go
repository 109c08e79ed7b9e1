package models

import "time"

// Payment is one attempt (successful or not) to collect money for a booking.
// A booking may have many rows across retries but at most one succeeded.
// Rows are only mutated through the ledger transition function and never
// deleted; failed attempts stay for audit.
type Payment struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	BookingID   uint   `gorm:"not null;index;uniqueIndex:idx_payments_booking_idem,priority:1" json:"booking_id"`
	Provider    string `gorm:"size:50;not null" json:"provider"`
	Method      string `gorm:"size:30;not null" json:"method"`
	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"size:3;default:'USD'" json:"currency"`
	Status      string `gorm:"size:20;not null;index" json:"status"`
	// Provider's reference, unique across all payments so webhook delivery
	// can never correlate to the wrong booking.
	ExternalTransactionID string     `gorm:"size:255;uniqueIndex" json:"external_transaction_id"`
	IdempotencyKey        string     `gorm:"size:64;not null;uniqueIndex:idx_payments_booking_idem,priority:2" json:"-"`
	ErrorCode             string     `gorm:"size:50" json:"error_code,omitempty"`
	ErrorMessage          string     `gorm:"size:255" json:"error_message,omitempty"`
	OrderExpiresAt        *time.Time `json:"order_expires_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`

	Booking Booking `gorm:"foreignKey:BookingID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// Refund is a deduction against a specific succeeded payment. Immutable once
// succeeded; the sum of succeeded refunds never exceeds the payment amount.
type Refund struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PaymentID   uint       `gorm:"not null;index" json:"payment_id"`
	AmountCents int64      `gorm:"not null" json:"amount_cents"`
	Status      string     `gorm:"size:20;not null;index" json:"status"`
	Reason      string     `gorm:"size:255" json:"reason"`
	ProviderRef string     `gorm:"size:255" json:"provider_ref,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Payment Payment `gorm:"foreignKey:PaymentID" json:"-"`
}

func (Refund) TableName() string {
	return "refunds"
}
