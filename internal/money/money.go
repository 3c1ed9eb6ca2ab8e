package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeMode selects how a plan's platform fee is computed.
type FeeMode string

const (
	FeeModePercent FeeMode = "percent"
	FeeModeFlat    FeeMode = "flat"
)

// PlanFee is the platform fee rule for one subscription plan.
type PlanFee struct {
	Mode FeeMode
	// Bps is the fee in basis points of the charged amount (percent mode).
	Bps int64
	// FlatCents is the fixed fee in cents (flat mode).
	FlatCents int64
}

// Split is the outcome of dividing a marketplace item total between the
// platform and a vendor. CommissionCents + VendorCents always equals the
// item total the split was computed from.
type Split struct {
	CommissionCents int64 `json:"commission_cents"`
	VendorCents     int64 `json:"vendor_cents"`
}

// FeeSchedule is the single source of every platform rate. It is versioned
// and injected wherever fees are computed, so the checkout path and any
// later reconciliation path cannot drift apart.
type FeeSchedule struct {
	Version       string
	Plans         map[string]PlanFee
	CommissionBps map[string]int64
}

// DefaultSchedule returns the v1 rate table.
func DefaultSchedule() FeeSchedule {
	return FeeSchedule{
		Version: "v1",
		Plans: map[string]PlanFee{
			"free":     {Mode: FeeModePercent, Bps: 1000},
			"starter":  {Mode: FeeModePercent, Bps: 1000},
			"pro":      {Mode: FeeModeFlat, FlatCents: 1000},
			"business": {Mode: FeeModeFlat, FlatCents: 1000},
		},
		CommissionBps: map[string]int64{
			"basic":   1000,
			"pro":     2500,
			"partner": 6000,
		},
	}
}

// PlatformFee computes the platform's cut in cents for a single charged
// amount. The fee never exceeds the amount itself.
func (s FeeSchedule) PlatformFee(plan string, amountCents int64) (int64, error) {
	if amountCents < 0 {
		return 0, fmt.Errorf("money: negative amount %d", amountCents)
	}
	rule, ok := s.Plans[plan]
	if !ok {
		return 0, fmt.Errorf("money: unknown plan %q", plan)
	}

	var fee int64
	switch rule.Mode {
	case FeeModePercent:
		fee = roundHalfUpBps(amountCents, rule.Bps)
	case FeeModeFlat:
		fee = rule.FlatCents
	default:
		return 0, fmt.Errorf("money: unknown fee mode %q", rule.Mode)
	}

	if fee > amountCents {
		fee = amountCents
	}
	return fee, nil
}

// VendorSplit divides a marketplace item total between commission and
// vendor payout. The vendor amount is the exact remainder, never a second
// rounding of its own.
func (s FeeSchedule) VendorSplit(tier string, itemTotalCents int64) (Split, error) {
	if itemTotalCents < 0 {
		return Split{}, fmt.Errorf("money: negative item total %d", itemTotalCents)
	}
	bps, ok := s.CommissionBps[tier]
	if !ok {
		return Split{}, fmt.Errorf("money: unknown commission tier %q", tier)
	}

	commission := roundHalfUpBps(itemTotalCents, bps)
	return Split{
		CommissionCents: commission,
		VendorCents:     itemTotalCents - commission,
	}, nil
}

// roundHalfUpBps applies a basis-point rate to a cent amount, rounding
// half-up to the nearest cent. Integer math only.
func roundHalfUpBps(amountCents, bps int64) int64 {
	return (amountCents*bps + 5000) / 10000
}

// Cents converts a decimal display amount into integer cents. Amounts with
// more than two fraction digits or negative values are rejected at the
// boundary instead of being silently rounded.
func Cents(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("money: negative amount %s", d)
	}
	scaled := d.Mul(decimal.NewFromInt(100))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("money: amount %s has sub-cent precision", d)
	}
	return scaled.IntPart(), nil
}

// Decimal converts integer cents back into a display decimal.
func Decimal(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}
