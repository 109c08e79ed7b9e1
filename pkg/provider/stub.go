package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Amounts with these trailing cents force deterministic stub outcomes, so
// development and integration flows can exercise every path without a real
// gateway.
const (
	stubDeclineCents     = 99
	stubUnavailableCents = 98
)

// StubProvider is a deterministic in-process provider for development. It
// implements all three interaction models; the registered name and model
// decide which one a payment exercises.
type StubProvider struct {
	name        string
	model       string
	orderExpiry time.Duration

	mu     sync.Mutex
	orders map[string]time.Time // order ref -> expiry
	tokens map[string]string    // idempotency token -> charge ref
}

func NewStubProvider(name, model string, orderExpiry time.Duration) *StubProvider {
	return &StubProvider{
		name:        name,
		model:       model,
		orderExpiry: orderExpiry,
		orders:      make(map[string]time.Time),
		tokens:      make(map[string]string),
	}
}

func (s *StubProvider) Name() string  { return s.name }
func (s *StubProvider) Model() string { return s.model }

func (s *StubProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	s.mu.Lock()
	if ref, ok := s.tokens[req.IdempotencyToken]; ok && req.IdempotencyToken != "" {
		s.mu.Unlock()
		// Provider-side idempotency: same token, same charge.
		return &ChargeResult{Status: StatusSucceeded, ExternalRef: ref}, nil
	}
	s.mu.Unlock()

	switch req.AmountCents % 100 {
	case stubDeclineCents:
		return FailureResult(CodeDeclined, false), nil
	case stubUnavailableCents:
		return FailureResult(CodeUnavailable, true), nil
	}
	ref := "stub_ch_" + uuid.NewString()
	if req.IdempotencyToken != "" {
		s.mu.Lock()
		s.tokens[req.IdempotencyToken] = ref
		s.mu.Unlock()
	}
	return &ChargeResult{Status: StatusSucceeded, ExternalRef: ref}, nil
}

func (s *StubProvider) CreateOrder(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.AmountCents%100 == stubDeclineCents {
		return FailureResult(CodeDeclined, false), nil
	}
	ref := "stub_ord_" + uuid.NewString()
	expires := time.Now().Add(s.orderExpiry)
	s.mu.Lock()
	s.orders[ref] = expires
	s.mu.Unlock()
	return &ChargeResult{Status: StatusPending, ExternalRef: ref, OrderExpiresAt: &expires}, nil
}

func (s *StubProvider) Capture(ctx context.Context, externalRef, idempotencyToken string) (*ChargeResult, error) {
	s.mu.Lock()
	expires, ok := s.orders[externalRef]
	s.mu.Unlock()
	if !ok {
		return FailureResult(CodeDeclined, false), nil
	}
	if time.Now().After(expires) {
		return &ChargeResult{Status: StatusFailed, ExternalRef: externalRef, ErrorCode: CodeOrderExpired}, nil
	}
	return &ChargeResult{Status: StatusSucceeded, ExternalRef: externalRef}, nil
}

func (s *StubProvider) SetupToken(ctx context.Context, req TokenRequest) (*TokenResult, error) {
	return &TokenResult{
		Token:       fmt.Sprintf("stub_tok_%d_%s", req.BookingID, uuid.NewString()[:8]),
		ExternalRef: "stub_setup_" + uuid.NewString(),
	}, nil
}

func (s *StubProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.AmountCents%100 == stubUnavailableCents {
		return &RefundResult{Status: StatusFailed, ErrorCode: CodeUnavailable, Retryable: true}, nil
	}
	return &RefundResult{Status: StatusSucceeded, ProviderRef: "stub_rf_" + uuid.NewString()}, nil
}
