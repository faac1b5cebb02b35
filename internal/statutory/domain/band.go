package domain

import (
	"github.com/shopspring/decimal"
)

// Band is one row of a slab table. UpperBound nil means open-ended.
// Lower bound is inclusive, upper bound exclusive.
type Band struct {
	LowerBound  decimal.Decimal  `json:"lower_bound"`
	UpperBound  *decimal.Decimal `json:"upper_bound,omitempty"`
	RatePercent decimal.Decimal  `json:"rate_percent"`
	Amount      decimal.Decimal  `json:"amount"`
	Marginal    bool             `json:"marginal"`
}

func (b Band) contains(v decimal.Decimal) bool {
	if v.LessThan(b.LowerBound) {
		return false
	}
	return b.UpperBound == nil || v.LessThan(*b.UpperBound)
}

type Bands []Band

// Validate checks the bands are ordered, contiguous and only the last is open.
func (bs Bands) Validate() error {
	for i, b := range bs {
		if b.LowerBound.IsNegative() || b.RatePercent.IsNegative() || b.Amount.IsNegative() {
			return ErrInvalidBands
		}
		if b.UpperBound != nil && !b.UpperBound.GreaterThan(b.LowerBound) {
			return ErrInvalidBands
		}
		if b.UpperBound == nil && i != len(bs)-1 {
			return ErrInvalidBands
		}
		if i > 0 {
			prev := bs[i-1]
			if prev.UpperBound == nil || !prev.UpperBound.Equal(b.LowerBound) {
				return ErrInvalidBands
			}
		}
	}
	return nil
}

// Find returns the band containing v.
func (bs Bands) Find(v decimal.Decimal) (Band, bool) {
	for _, b := range bs {
		if b.contains(v) {
			return b, true
		}
	}
	return Band{}, false
}

// FlatAmount applies the band containing v: its fixed amount, plus
// (v - lower) x rate% when the band is marked marginal.
func (bs Bands) FlatAmount(v decimal.Decimal) decimal.Decimal {
	b, ok := bs.Find(v)
	if !ok {
		return decimal.Zero
	}
	if !b.Marginal {
		return b.Amount
	}
	return b.Amount.Add(v.Sub(b.LowerBound).Mul(b.RatePercent).Div(hundred))
}

// MarginalTax walks the slabs cumulatively, taxing each slice of v at its band rate.
func (bs Bands) MarginalTax(v decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bs {
		if !v.GreaterThan(b.LowerBound) {
			break
		}
		top := v
		if b.UpperBound != nil && b.UpperBound.LessThan(v) {
			top = *b.UpperBound
		}
		slice := top.Sub(b.LowerBound)
		total = total.Add(slice.Mul(b.RatePercent).Div(hundred))
	}
	return total
}

var hundred = decimal.NewFromInt(100)

// Percent returns v x rate / 100 without rounding.
func Percent(v, rate decimal.Decimal) decimal.Decimal {
	return v.Mul(rate).Div(hundred)
}
