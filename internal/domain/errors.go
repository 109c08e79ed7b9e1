package domain

import "errors"

// Sentinel errors. The HTTP layer maps these to status codes and the stable
// error codes below; raw provider payloads never reach callers.
var (
	ErrValidation        = errors.New("invalid input")
	ErrNotFound          = errors.New("record not found")
	ErrChargeInFlight    = errors.New("a charge for this idempotency key is still in flight")
	ErrInvalidTransition = errors.New("illegal payment state transition")
	ErrOverRefund        = errors.New("refund exceeds remaining refundable amount")
	ErrProviderRetryable = errors.New("provider attempt failed, retry permitted")
	ErrProviderTerminal  = errors.New("provider rejected the attempt")
	ErrWebhookSignature  = errors.New("webhook signature verification failed")
	ErrUnknownProvider   = errors.New("unknown payment provider")
)

// Stable, provider-agnostic error codes returned to API callers.
const (
	CodeValidation      = "validation_error"
	CodeInFlight        = "charge_in_flight"
	CodeInvalidState    = "invalid_transition"
	CodeOverRefund      = "over_refund"
	CodeProviderRetry   = "provider_error_retryable"
	CodeProviderDecline = "provider_declined"
	CodeNotFound        = "not_found"
	CodeBadSignature    = "invalid_signature"
)
