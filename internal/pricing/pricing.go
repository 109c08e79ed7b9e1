package pricing

import (
	"fmt"
	"math"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/domain"
)

// All amounts are integer minor units (cents). Percentages are basis points
// so the arithmetic stays integral until the final rounding.
const (
	TaxRateBasisPoints    = 1200 // 12% of subtotal
	ServiceFeeBasisPoints = 300  // 3% of subtotal...
	ServiceFeeFloorCents  = 500  // ...but never below this floor
	CleaningFeeShortCents = 1500 // stays up to CleaningTierNights nights
	CleaningFeeLongCents  = 2500 // longer stays, flat (not prorated)
	CleaningTierNights    = 3
)

type Breakdown struct {
	SubtotalCents    int64  `json:"subtotal_cents"`
	TaxesCents       int64  `json:"taxes_cents"`
	ServiceFeeCents  int64  `json:"service_fee_cents"`
	CleaningFeeCents int64  `json:"cleaning_fee_cents"`
	TotalCents       int64  `json:"total_cents"`
	Currency         string `json:"currency"`
}

// Compute returns the deterministic price breakdown for a stay. Pure: same
// inputs, same output, no lookups.
func Compute(baseAmountCents int64, nights int, currency string) (*Breakdown, error) {
	if baseAmountCents < 0 {
		return nil, fmt.Errorf("%w: base amount must not be negative", domain.ErrValidation)
	}
	if nights < 1 {
		return nil, fmt.Errorf("%w: nights must be at least 1", domain.ErrValidation)
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", domain.ErrValidation)
	}
	subtotal := baseAmountCents
	taxes := basisPoints(subtotal, TaxRateBasisPoints)
	serviceFee := basisPoints(subtotal, ServiceFeeBasisPoints)
	if serviceFee < ServiceFeeFloorCents {
		serviceFee = ServiceFeeFloorCents
	}
	cleaning := int64(CleaningFeeShortCents)
	if nights > CleaningTierNights {
		cleaning = CleaningFeeLongCents
	}
	return &Breakdown{
		SubtotalCents:    subtotal,
		TaxesCents:       taxes,
		ServiceFeeCents:  serviceFee,
		CleaningFeeCents: cleaning,
		TotalCents:       subtotal + taxes + serviceFee + cleaning,
		Currency:         currency,
	}, nil
}

// basisPoints applies a basis-point rate with half-up rounding.
func basisPoints(amountCents int64, bp int64) int64 {
	return (amountCents*bp + 5000) / 10000
}

// Convert applies an externally supplied exchange rate. The calculator never
// fetches rates; rounding happens once, here, half-up.
func Convert(amountCents int64, rate float64) (int64, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: rate must be positive", domain.ErrValidation)
	}
	return int64(math.Round(float64(amountCents) * rate)), nil
}

// RateSource supplies exchange rates; it is a pure lookup owned externally.
type RateSource interface {
	Rate(from, to string) (float64, error)
}

// StaticRates is a fixed-table RateSource for display conversion.
type StaticRates map[string]float64

func (s StaticRates) Rate(from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	if r, ok := s[from+"/"+to]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("%w: no rate for %s/%s", domain.ErrValidation, from, to)
}
