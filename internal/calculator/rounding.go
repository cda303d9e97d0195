package calculator

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// DefaultDecimals is the number of decimal places monetary amounts keep.
const DefaultDecimals int32 = 2

// RoundingPolicy rounds every monetary sub-result before it is aggregated.
// Rounding is half away from zero.
type RoundingPolicy struct {
	Places int32
}

// NewRoundingPolicy returns a policy for the given number of places. A
// negative value selects DefaultDecimals.
func NewRoundingPolicy(places int32) RoundingPolicy {
	if places < 0 {
		places = DefaultDecimals
	}
	return RoundingPolicy{Places: places}
}

// Round rounds d to the policy's places.
func (p RoundingPolicy) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(p.Places)
}

// Percent returns round(base * rate / 100).
func (p RoundingPolicy) Percent(base, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() || base.IsZero() {
		return decimal.Zero
	}
	return p.Round(base.Mul(rate).Div(hundred))
}

// Sum adds values rounding after every step.
func (p RoundingPolicy) Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = p.Round(total.Add(v))
	}
	return total
}

// discountFactor returns (1 - d1/100) * (1 - d2/100).
func discountFactor(d1, d2 decimal.Decimal) decimal.Decimal {
	return one.Sub(d1.Div(hundred)).Mul(one.Sub(d2.Div(hundred)))
}
