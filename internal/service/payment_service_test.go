package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/ledger"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	withNonce := DeriveKey(7, "syncpay", "nonce-1", 10000, "USD")
	assert.Len(t, withNonce, 64)
	assert.Equal(t, withNonce, DeriveKey(7, "syncpay", "nonce-1", 10000, "USD"))
	// With a nonce the amount is irrelevant; the nonce names the attempt.
	assert.Equal(t, withNonce, DeriveKey(7, "syncpay", "nonce-1", 999, "USD"))
	assert.NotEqual(t, withNonce, DeriveKey(7, "syncpay", "nonce-2", 10000, "USD"))
	assert.NotEqual(t, withNonce, DeriveKey(8, "syncpay", "nonce-1", 10000, "USD"))

	withoutNonce := DeriveKey(7, "syncpay", "", 10000, "USD")
	assert.NotEqual(t, withoutNonce, DeriveKey(7, "syncpay", "", 10001, "USD"))
	assert.NotEqual(t, withoutNonce, DeriveKey(7, "orderpay", "", 10000, "USD"))
}

func TestCreatePaymentSyncSuccess(t *testing.T) {
	f := newFixture()
	b := f.booking(13200, "USD")
	fp := syncProvider("syncpay", func(req provider.ChargeRequest) (*provider.ChargeResult, error) {
		assert.NotEmpty(t, req.IdempotencyToken)
		return &provider.ChargeResult{Status: provider.StatusSucceeded, ExternalRef: "ch_1"}, nil
	})
	svc := f.paymentService(provider.NewRegistry(fp))

	p, created, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Nonce: "n1", Actor: "booking-svc",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)
	assert.Equal(t, "ch_1", p.ExternalTransactionID)
	assert.NotNil(t, p.CompletedAt)
	assert.Equal(t, 1, fp.chargeCalls)

	// pending -> processing, processing -> succeeded.
	assert.Equal(t, 2, f.db.auditCount("payment", p.ID))

	got, err := f.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayStatusSucceeded, got.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
}

func TestCreatePaymentReplayReturnsOriginal(t *testing.T) {
	f := newFixture()
	b := f.booking(13200, "USD")
	fp := syncProvider("syncpay", func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return &provider.ChargeResult{Status: provider.StatusSucceeded, ExternalRef: "ch_1"}, nil
	})
	svc := f.paymentService(provider.NewRegistry(fp))
	in := CreatePaymentInput{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Nonce: "n1",
	}

	first, created, err := svc.CreatePayment(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.CreatePayment(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.PaymentSucceeded, second.Status)
	// The provider was charged exactly once.
	assert.Equal(t, 1, fp.chargeCalls)
}

func TestCreatePaymentInFlight(t *testing.T) {
	f := newFixture()
	b := f.booking(13200, "USD")
	fp := syncProvider("syncpay", func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return &provider.ChargeResult{Status: provider.StatusSucceeded}, nil
	})
	svc := f.paymentService(provider.NewRegistry(fp))

	// Another request already holds this key and is mid-charge.
	key := DeriveKey(b.ID, "syncpay", "n1", 13200, "USD")
	seed, _, err := f.payments.CreateOrGet(context.Background(), &models.Payment{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Status: domain.PaymentPending,
		ExternalTransactionID: "loc_seed", IdempotencyKey: key,
	})
	require.NoError(t, err)
	_, _, err = f.payments.Transition(context.Background(), seed.ID, domain.PaymentProcessing, ledger.TransitionMeta{})
	require.NoError(t, err)

	p, created, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Nonce: "n1",
	})
	assert.True(t, errors.Is(err, domain.ErrChargeInFlight))
	assert.False(t, created)
	require.NotNil(t, p)
	assert.Equal(t, seed.ID, p.ID)
	assert.Equal(t, 0, fp.chargeCalls)
}

func TestCreatePaymentConcurrentDoubleSubmit(t *testing.T) {
	f := newFixture()
	b := f.booking(13200, "USD")
	fp := syncProvider("syncpay", func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return &provider.ChargeResult{Status: provider.StatusSucceeded, ExternalRef: "ch_1"}, nil
	})
	svc := f.paymentService(provider.NewRegistry(fp))
	in := CreatePaymentInput{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Nonce: "n1",
	}

	type outcome struct {
		p       *models.Payment
		created bool
		err     error
	}
	results := make([]outcome, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, created, err := svc.CreatePayment(context.Background(), in)
			results[i] = outcome{p, created, err}
		}(i)
	}
	wg.Wait()

	// Exactly one request owns the attempt; the other replays the winner's
	// row or observes it mid-charge. Never a second charge.
	createdCount := 0
	for _, r := range results {
		if r.created {
			createdCount++
			require.NoError(t, r.err)
			assert.Equal(t, domain.PaymentSucceeded, r.p.Status)
		} else if r.err != nil {
			assert.True(t, errors.Is(r.err, domain.ErrChargeInFlight), "got %v", r.err)
		}
	}
	assert.Equal(t, 1, createdCount)
	assert.Equal(t, 1, fp.chargeCalls)

	rows, err := f.payments.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.PaymentSucceeded, rows[0].Status)
}

func TestCreatePaymentDeclinedThenRetry(t *testing.T) {
	f := newFixture()
	b := f.booking(13200, "USD")
	calls := 0
	fp := syncProvider("syncpay", func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		calls++
		if calls == 1 {
			return provider.FailureResult(provider.CodeDeclined, false), nil
		}
		return &provider.ChargeResult{Status: provider.StatusSucceeded, ExternalRef: "ch_2"}, nil
	})
	svc := f.paymentService(provider.NewRegistry(fp))

	p, created, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Nonce: "n1",
	})
	assert.True(t, errors.Is(err, domain.ErrProviderTerminal))
	assert.True(t, created)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, provider.CodeDeclined, p.ErrorCode)
	assert.NotEmpty(t, p.ErrorMessage)

	got, _ := f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, domain.PayStatusFailed, got.PaymentStatus)
	assert.Equal(t, domain.BookingPending, got.Status)

	// Retrying needs a fresh nonce; the failed attempt keeps its key.
	retry, created, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Nonce: "n2",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, p.ID, retry.ID)
	assert.Equal(t, domain.PaymentSucceeded, retry.Status)

	// The failed attempt is retained, not overwritten.
	rows, err := f.payments.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	got, _ = f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, domain.PayStatusSucceeded, got.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
}

func TestCreatePaymentProviderTimeout(t *testing.T) {
	f := newFixture()
	b := f.booking(13200, "USD")
	fp := syncProvider("syncpay", func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return nil, context.DeadlineExceeded
	})
	svc := f.paymentService(provider.NewRegistry(fp))

	p, _, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Nonce: "n1",
	})
	assert.True(t, errors.Is(err, domain.ErrProviderRetryable))
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, provider.CodeTimeout, p.ErrorCode)
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newFixture()
	b := f.booking(13200, "USD")
	fp := syncProvider("syncpay", func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		t.Fatal("provider must not be called")
		return nil, nil
	})
	svc := f.paymentService(provider.NewRegistry(fp))
	base := CreatePaymentInput{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 13200, Currency: "USD", Nonce: "n1",
	}

	cases := []struct {
		name   string
		mutate func(*CreatePaymentInput)
		want   error
	}{
		{"zero amount", func(in *CreatePaymentInput) { in.AmountCents = 0 }, domain.ErrValidation},
		{"negative amount", func(in *CreatePaymentInput) { in.AmountCents = -100 }, domain.ErrValidation},
		{"bad currency", func(in *CreatePaymentInput) { in.Currency = "DOLLARS" }, domain.ErrValidation},
		{"unknown method", func(in *CreatePaymentInput) { in.Method = "iou" }, domain.ErrValidation},
		{"unknown provider", func(in *CreatePaymentInput) { in.Provider = "nope" }, domain.ErrUnknownProvider},
		{"missing booking", func(in *CreatePaymentInput) { in.BookingID = 999 }, domain.ErrNotFound},
		{"currency mismatch", func(in *CreatePaymentInput) { in.Currency = "EUR" }, domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, _, err := svc.CreatePayment(context.Background(), in)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
	assert.Equal(t, 0, fp.chargeCalls)
}

func orderProvider(expiresIn time.Duration) *fakeProvider {
	fp := &fakeProvider{name: "orderpay", model: domain.ModelOrderCapture}
	fp.createOrder = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		expires := time.Now().Add(expiresIn)
		return &provider.ChargeResult{Status: provider.StatusPending, ExternalRef: "ord_1", OrderExpiresAt: &expires}, nil
	}
	fp.capture = func(ref, token string) (*provider.ChargeResult, error) {
		return &provider.ChargeResult{Status: provider.StatusSucceeded, ExternalRef: ref}, nil
	}
	return fp
}

func TestOrderCaptureFlow(t *testing.T) {
	f := newFixture()
	b := f.booking(20000, "USD")
	fp := orderProvider(30 * time.Minute)
	svc := f.paymentService(provider.NewRegistry(fp))

	p, created, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		BookingID: b.ID, Provider: "orderpay", Method: domain.MethodCard,
		AmountCents: 20000, Currency: "USD", Nonce: "n1",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.PaymentProcessing, p.Status)
	assert.Equal(t, "ord_1", p.ExternalTransactionID)
	require.NotNil(t, p.OrderExpiresAt)

	// Nothing collected yet.
	got, _ := f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, domain.PayStatusPending, got.PaymentStatus)

	captured, err := svc.CapturePayment(context.Background(), "ord_1", "back-office")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, captured.Status)
	assert.Equal(t, 1, fp.captureCalls)

	got, _ = f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, domain.PayStatusSucceeded, got.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, got.Status)

	// Capturing again is a no-op read, not a second provider call.
	again, err := svc.CapturePayment(context.Background(), "ord_1", "back-office")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, again.Status)
	assert.Equal(t, 1, fp.captureCalls)
}

func TestCaptureAbsorbsWebhookRace(t *testing.T) {
	f := newFixture()
	b := f.booking(20000, "USD")
	rc := f.reconciler()
	fp := &fakeProvider{name: "orderpay", model: domain.ModelOrderCapture}
	fp.createOrder = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		expires := time.Now().Add(30 * time.Minute)
		return &provider.ChargeResult{Status: provider.StatusPending, ExternalRef: "ord_1", OrderExpiresAt: &expires}, nil
	}
	// The provider's webhook lands while the capture response is still on
	// the wire, so the ledger reaches succeeded before the synchronous path
	// settles.
	fp.capture = func(ref, token string) (*provider.ChargeResult, error) {
		err := rc.Handle(context.Background(), WebhookPayload{
			EventID: "evt_1", Provider: "orderpay", Reference: ref, Status: "captured",
		})
		require.NoError(t, err)
		return &provider.ChargeResult{Status: provider.StatusSucceeded, ExternalRef: ref}, nil
	}
	svc := f.paymentService(provider.NewRegistry(fp))

	p, _, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		BookingID: b.ID, Provider: "orderpay", Method: domain.MethodCard,
		AmountCents: 20000, Currency: "USD", Nonce: "n1",
	})
	require.NoError(t, err)

	captured, err := svc.CapturePayment(context.Background(), "ord_1", "back-office")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, captured.Status)

	// One transition to succeeded, written by the webhook; the capture path
	// absorbed the already-settled row instead of double-transitioning.
	assert.Equal(t, 2, f.db.auditCount("payment", p.ID))

	got, _ := f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, domain.PayStatusSucceeded, got.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
}

func TestCaptureAfterExpiry(t *testing.T) {
	f := newFixture()
	b := f.booking(20000, "USD")
	fp := orderProvider(-time.Minute)
	svc := f.paymentService(provider.NewRegistry(fp))

	_, _, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		BookingID: b.ID, Provider: "orderpay", Method: domain.MethodCard,
		AmountCents: 20000, Currency: "USD", Nonce: "n1",
	})
	require.NoError(t, err)

	p, err := svc.CapturePayment(context.Background(), "ord_1", "back-office")
	assert.True(t, errors.Is(err, domain.ErrProviderTerminal))
	require.NotNil(t, p)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, provider.CodeOrderExpired, p.ErrorCode)
	// The expiry is enforced locally; the provider is never asked.
	assert.Equal(t, 0, fp.captureCalls)
}

func TestCaptureUnknownAndWrongState(t *testing.T) {
	f := newFixture()
	b := f.booking(20000, "USD")
	fp := orderProvider(30 * time.Minute)
	svc := f.paymentService(provider.NewRegistry(fp))

	_, err := svc.CapturePayment(context.Background(), "missing", "back-office")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	key := DeriveKey(b.ID, "orderpay", "n1", 20000, "USD")
	seed, _, err := f.payments.CreateOrGet(context.Background(), &models.Payment{
		BookingID: b.ID, Provider: "orderpay", Method: domain.MethodCard,
		AmountCents: 20000, Currency: "USD", Status: domain.PaymentPending,
		ExternalTransactionID: "ord_dead", IdempotencyKey: key,
	})
	require.NoError(t, err)
	_, _, err = f.payments.Transition(context.Background(), seed.ID, domain.PaymentFailed, ledger.TransitionMeta{})
	require.NoError(t, err)

	_, err = svc.CapturePayment(context.Background(), "ord_dead", "back-office")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestSetupToken(t *testing.T) {
	f := newFixture()
	b := f.booking(20000, "USD")
	fp := &fakeProvider{name: "tokenvault", model: domain.ModelTokenSetup}
	fp.setupToken = func(req provider.TokenRequest) (*provider.TokenResult, error) {
		return &provider.TokenResult{Token: "tok_1", ExternalRef: "setup_1"}, nil
	}
	svc := f.paymentService(provider.NewRegistry(fp))

	p, token, err := svc.SetupToken(context.Background(), SetupTokenInput{
		BookingID: b.ID, Provider: "tokenvault", Method: domain.MethodCard, Actor: "booking-svc",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok_1", token)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)
	assert.Equal(t, int64(0), p.AmountCents)
	assert.Equal(t, "setup_1", p.ExternalTransactionID)

	// A token setup moves no money and never touches the booking projection.
	got, _ := f.bookings.GetByID(context.Background(), b.ID)
	assert.Equal(t, domain.PayStatusPending, got.PaymentStatus)
	assert.Equal(t, domain.BookingPending, got.Status)
}

func TestSetupTokenProviderFailure(t *testing.T) {
	f := newFixture()
	b := f.booking(20000, "USD")
	fp := &fakeProvider{name: "tokenvault", model: domain.ModelTokenSetup}
	fp.setupToken = func(provider.TokenRequest) (*provider.TokenResult, error) {
		return nil, errors.New("vault down")
	}
	svc := f.paymentService(provider.NewRegistry(fp))

	p, token, err := svc.SetupToken(context.Background(), SetupTokenInput{
		BookingID: b.ID, Provider: "tokenvault", Method: domain.MethodCard,
	})
	assert.True(t, errors.Is(err, domain.ErrProviderRetryable))
	assert.Empty(t, token)
	require.NotNil(t, p)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, provider.CodeUnavailable, p.ErrorCode)
}

func TestSetupTokenProviderTimeout(t *testing.T) {
	f := newFixture()
	b := f.booking(20000, "USD")
	fp := &fakeProvider{name: "tokenvault", model: domain.ModelTokenSetup}
	fp.setupToken = func(provider.TokenRequest) (*provider.TokenResult, error) {
		return nil, context.DeadlineExceeded
	}
	svc := f.paymentService(provider.NewRegistry(fp))

	p, token, err := svc.SetupToken(context.Background(), SetupTokenInput{
		BookingID: b.ID, Provider: "tokenvault", Method: domain.MethodCard,
	})
	assert.True(t, errors.Is(err, domain.ErrProviderRetryable))
	assert.Empty(t, token)
	require.NotNil(t, p)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, provider.CodeTimeout, p.ErrorCode)
}

func TestGetBookingPayments(t *testing.T) {
	f := newFixture()
	b := f.booking(10000, "USD")
	ctx := context.Background()

	failed, _, err := f.payments.CreateOrGet(ctx, &models.Payment{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 10000, Currency: "USD", Status: domain.PaymentPending,
		ExternalTransactionID: "loc_1", IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	_, _, err = f.payments.Transition(ctx, failed.ID, domain.PaymentFailed, ledger.TransitionMeta{})
	require.NoError(t, err)

	paid, _, err := f.payments.CreateOrGet(ctx, &models.Payment{
		BookingID: b.ID, Provider: "syncpay", Method: domain.MethodCard,
		AmountCents: 10000, Currency: "USD", Status: domain.PaymentPending,
		ExternalTransactionID: "ch_1", IdempotencyKey: "k2",
	})
	require.NoError(t, err)
	_, _, err = f.payments.Transition(ctx, paid.ID, domain.PaymentProcessing, ledger.TransitionMeta{})
	require.NoError(t, err)
	_, _, err = f.payments.Transition(ctx, paid.ID, domain.PaymentSucceeded, ledger.TransitionMeta{})
	require.NoError(t, err)

	ref, err := f.refunds.CreatePending(ctx, paid.ID, 3000, "schedule change")
	require.NoError(t, err)
	_, err = f.refunds.Settle(ctx, ref.ID, domain.RefundSucceeded, "rf_1")
	require.NoError(t, err)
	_, _, err = f.payments.Transition(ctx, paid.ID, domain.PaymentPartiallyRefunded, ledger.TransitionMeta{})
	require.NoError(t, err)

	svc := f.paymentService(provider.NewRegistry())
	out, err := svc.GetBookingPayments(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, out.Payments, 2)
	assert.Len(t, out.Refunds, 1)
	assert.Equal(t, domain.PayStatusPartiallyRefunded, out.Summary.PaymentStatus)
	assert.Equal(t, int64(10000), out.Summary.TotalPaidCents)
	assert.Equal(t, int64(3000), out.Summary.TotalRefundedCents)
	assert.Equal(t, 0, out.Summary.OutstandingAttempts)

	_, err = svc.GetBookingPayments(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
