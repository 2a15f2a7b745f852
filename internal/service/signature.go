package service

import (
	"github.com/shopspring/decimal"

	"peakwatch/internal/levels"
)

// Signature is the rounded snapshot of level state used to suppress duplicate
// alerts. Prices are rounded to two decimals; an absent level contributes a
// zero price and zero support. Balance participates only in deployments with
// a balance fetcher configured.
type Signature struct {
	MinPrice   decimal.Decimal
	MinSupport int
	MaxPrice   decimal.Decimal
	MaxSupport int
	Balance    decimal.Decimal
	HasBalance bool
}

// NewSignature builds the candidate signature for one tick. balance is the
// fetched balance (nil when unavailable); withBalance states whether this
// deployment includes balance in the signature at all.
func NewSignature(peaks levels.PeakLevels, balance *float64, withBalance bool) Signature {
	sig := Signature{
		MinPrice: roundLevel(peaks.Min),
		MaxPrice: roundLevel(peaks.Max),
	}
	if peaks.Min != nil {
		sig.MinSupport = peaks.Min.Support
	}
	if peaks.Max != nil {
		sig.MaxSupport = peaks.Max.Support
	}
	if withBalance {
		sig.HasBalance = true
		sig.Balance = roundOptional(balance)
	}
	return sig
}

// Equal reports whether two signatures describe the same rounded level state.
// This is an exact comparison on the rounded values: a price must move the
// 2-decimal rounding, or a support count must change, to re-arm alerting.
func (s Signature) Equal(other Signature) bool {
	return s.MinPrice.Equal(other.MinPrice) &&
		s.MinSupport == other.MinSupport &&
		s.MaxPrice.Equal(other.MaxPrice) &&
		s.MaxSupport == other.MaxSupport &&
		s.HasBalance == other.HasBalance &&
		s.Balance.Equal(other.Balance)
}

func roundLevel(l *levels.Level) decimal.Decimal {
	if l == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(l.Price).Round(2)
}

func roundOptional(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v).Round(2)
}
