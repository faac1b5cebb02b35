package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func ptr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func TestBandsValidate(t *testing.T) {
	ok := Bands{
		{LowerBound: dec("0"), UpperBound: ptr("10000")},
		{LowerBound: dec("10000"), UpperBound: ptr("20000"), Amount: dec("150")},
		{LowerBound: dec("20000"), Amount: dec("200")},
	}
	assert.NoError(t, ok.Validate())

	gap := Bands{
		{LowerBound: dec("0"), UpperBound: ptr("10000")},
		{LowerBound: dec("12000"), Amount: dec("200")},
	}
	assert.ErrorIs(t, gap.Validate(), ErrInvalidBands)

	openMiddle := Bands{
		{LowerBound: dec("0")},
		{LowerBound: dec("10000"), Amount: dec("200")},
	}
	assert.ErrorIs(t, openMiddle.Validate(), ErrInvalidBands)

	inverted := Bands{{LowerBound: dec("500"), UpperBound: ptr("100")}}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidBands)
}

func TestBandsFlatAmount(t *testing.T) {
	pt := Bands{
		{LowerBound: dec("0"), UpperBound: ptr("15000"), Amount: dec("0")},
		{LowerBound: dec("15000"), UpperBound: ptr("25000"), Amount: dec("150")},
		{LowerBound: dec("25000"), Amount: dec("200")},
	}
	assert.True(t, pt.FlatAmount(dec("14999.99")).Equal(dec("0")))
	assert.True(t, pt.FlatAmount(dec("15000")).Equal(dec("150")))
	assert.True(t, pt.FlatAmount(dec("90000")).Equal(dec("200")))

	marginal := Bands{
		{LowerBound: dec("0"), UpperBound: ptr("10000")},
		{LowerBound: dec("10000"), Amount: dec("100"), RatePercent: dec("1"), Marginal: true},
	}
	// 100 + (30000 - 10000) x 1%
	assert.True(t, marginal.FlatAmount(dec("30000")).Equal(dec("300")))
}

func TestBandsMarginalTax(t *testing.T) {
	slabs := Bands{
		{LowerBound: dec("0"), UpperBound: ptr("400000"), RatePercent: dec("0")},
		{LowerBound: dec("400000"), UpperBound: ptr("800000"), RatePercent: dec("5")},
		{LowerBound: dec("800000"), UpperBound: ptr("1200000"), RatePercent: dec("10")},
		{LowerBound: dec("1200000"), RatePercent: dec("30")},
	}
	assert.True(t, slabs.MarginalTax(dec("350000")).IsZero())
	// 400000 x 5% + 100000 x 10%
	assert.True(t, slabs.MarginalTax(dec("900000")).Equal(dec("30000")))
	// 20000 + 40000 + 300000 x 30%
	assert.True(t, slabs.MarginalTax(dec("1500000")).Equal(dec("150000")))
}
