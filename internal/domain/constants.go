package domain

// Booking lifecycle status. Owned by the booking subsystem; the payment
// engine only moves pending -> confirmed on first successful payment.
const (
	BookingPending    = "pending"
	BookingConfirmed  = "confirmed"
	BookingCancelled  = "cancelled"
	BookingCheckedIn  = "checked_in"
	BookingCheckedOut = "checked_out"
)

// Booking payment status, derived from the payment ledger.
const (
	PayStatusPending           = "pending"
	PayStatusSucceeded         = "succeeded"
	PayStatusFailed            = "failed"
	PayStatusRefunded          = "refunded"
	PayStatusPartiallyRefunded = "partially_refunded"
)

// Payment row status.
const (
	PaymentPending           = "pending"
	PaymentProcessing        = "processing"
	PaymentSucceeded         = "succeeded"
	PaymentFailed            = "failed"
	PaymentRefunded          = "refunded"
	PaymentPartiallyRefunded = "partially_refunded"
)

// Refund row status.
const (
	RefundPending   = "pending"
	RefundSucceeded = "succeeded"
	RefundFailed    = "failed"
)

// Provider interaction models.
const (
	ModelSyncCharge   = "sync_charge"
	ModelOrderCapture = "order_capture"
	ModelTokenSetup   = "token_setup"
)

// Payment methods accepted on the charge path.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodWallet       = "wallet"
)

var validMethods = map[string]bool{
	MethodCard:         true,
	MethodBankTransfer: true,
	MethodWallet:       true,
}

// ValidMethod reports whether m is an accepted payment method.
func ValidMethod(m string) bool {
	return validMethods[m]
}
