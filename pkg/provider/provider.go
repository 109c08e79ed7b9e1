package provider

import (
	"context"
	"fmt"
	"time"
)

// Normalized result status. Every provider response collapses into this
// closed set so the ledger never branches on provider-specific fields.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusPending   = "pending"
)

// Normalized error codes carried on failed results.
const (
	CodeDeclined     = "card_declined"
	CodeInvalidCard  = "invalid_card"
	CodeTimeout      = "provider_timeout"
	CodeUnavailable  = "provider_unavailable"
	CodeOrderExpired = "order_expired"
)

type ChargeRequest struct {
	BookingID   uint
	PaymentID   uint
	AmountCents int64
	Currency    string
	Method      string
	Description string
	// IdempotencyToken is forwarded to the provider where supported, so a
	// caller-side retry cannot double-charge even if our own guard record
	// was lost.
	IdempotencyToken string
}

// ChargeResult is the single shape every interaction model resolves to.
type ChargeResult struct {
	Status      string
	ExternalRef string
	ErrorCode   string
	// Retryable distinguishes transient failures (timeout, 5xx) from
	// terminal ones (declined, invalid card, expired order).
	Retryable bool
	// OrderExpiresAt is set by order/capture providers on order creation.
	OrderExpiresAt *time.Time
}

type RefundRequest struct {
	ExternalRef string
	AmountCents int64
	Currency    string
	Reason      string
	// IdempotencyToken is the refund's own id.
	IdempotencyToken string
}

type RefundResult struct {
	Status      string
	ProviderRef string
	ErrorCode   string
	Retryable   bool
}

type TokenRequest struct {
	BookingID        uint
	Method           string
	IdempotencyToken string
}

type TokenResult struct {
	Token       string
	ExternalRef string
}

// Charger is the synchronous model: one call authorizes and captures.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// OrderCapturer is the two-phase model: CreateOrder reserves funds and
// returns a pending reference with an expiry; Capture finalizes it.
// Capture after expiry is a terminal failure, never retryable.
type OrderCapturer interface {
	CreateOrder(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Capture(ctx context.Context, externalRef, idempotencyToken string) (*ChargeResult, error)
}

// Tokenizer produces a reusable payment-method token without moving money.
type Tokenizer interface {
	SetupToken(ctx context.Context, req TokenRequest) (*TokenResult, error)
}

type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// Adapter is one registered provider: a name, its interaction model, and
// whichever capability interfaces it implements.
type Adapter interface {
	Name() string
	Model() string
}

// Registry maps provider names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	return names
}

// FailureResult builds a failed ChargeResult with the given code.
func FailureResult(code string, retryable bool) *ChargeResult {
	return &ChargeResult{Status: StatusFailed, ErrorCode: code, Retryable: retryable}
}

func (c *ChargeResult) String() string {
	return fmt.Sprintf("charge{status=%s ref=%s code=%s}", c.Status, c.ExternalRef, c.ErrorCode)
}
