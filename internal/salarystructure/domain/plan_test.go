package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func standardComponents() []Component {
	return []Component{
		{Code: "SPECIAL", Name: "Special Allowance", Kind: KindEarning, Computation: ComputationFormula, Formula: "GROSS_TARGET - BASIC - HRA", Taxable: true},
		{Code: "basic", Name: "Basic", Kind: KindEarning, Computation: ComputationFixedAmount, Amount: d("30000"), Proratable: true, PFWage: true, Taxable: true},
		{Code: "HRA", Name: "House Rent Allowance", Kind: KindEarning, Computation: ComputationPercentOfBase, Percent: d("40"), BaseComponent: "Basic", Proratable: true, Taxable: true},
		{Code: "GROSS_TARGET", Name: "Target", Kind: KindEarning, Computation: ComputationFixedAmount, Amount: d("50000")},
	}
}

func TestCompileOrdersDependencies(t *testing.T) {
	plan, err := Compile(standardComponents())
	require.NoError(t, err)

	values, err := plan.FullAmounts(nil)
	require.NoError(t, err)
	assert.True(t, values["BASIC"].Equal(d("30000")))
	assert.True(t, values["HRA"].Equal(d("12000")))
	assert.True(t, values["SPECIAL"].Equal(d("8000")))

	// declaration order is preserved for output
	assert.Equal(t, "SPECIAL", plan.Components[0].Code)
	assert.Equal(t, "BASIC", plan.Components[2].BaseComponent)
}

func TestFullAmountsAppliesOverrides(t *testing.T) {
	plan, err := Compile(standardComponents())
	require.NoError(t, err)

	values, err := plan.FullAmounts(map[string]decimal.Decimal{"BASIC": d("20000")})
	require.NoError(t, err)
	assert.True(t, values["HRA"].Equal(d("8000")))
	assert.True(t, values["SPECIAL"].Equal(d("22000")))
}

func TestCompileRejectsInvalidStructures(t *testing.T) {
	cases := map[string]struct {
		components []Component
		want       error
	}{
		"empty": {nil, ErrEmptyStructure},
		"unknown computation": {[]Component{
			{Code: "BASIC", Kind: KindEarning, Computation: "SLIDING_SCALE"},
		}, ErrUnknownComputation},
		"missing base": {[]Component{
			{Code: "HRA", Kind: KindEarning, Computation: ComputationPercentOfBase, Percent: d("40"), BaseComponent: "BASIC"},
		}, ErrMissingBaseComponent},
		"bad formula": {[]Component{
			{Code: "X", Kind: KindEarning, Computation: ComputationFormula, Formula: "1 +"},
		}, ErrInvalidFormula},
		"unknown reference": {[]Component{
			{Code: "X", Kind: KindEarning, Computation: ComputationFormula, Formula: "BONUS * 2"},
		}, ErrUnknownReference},
		"duplicate": {[]Component{
			{Code: "BASIC", Kind: KindEarning, Computation: ComputationFixedAmount},
			{Code: "basic", Kind: KindEarning, Computation: ComputationFixedAmount},
		}, ErrDuplicateComponent},
		"bad kind": {[]Component{
			{Code: "BASIC", Kind: "BENEFIT", Computation: ComputationFixedAmount},
		}, ErrUnknownComponentKind},
		"cycle": {[]Component{
			{Code: "A", Kind: KindEarning, Computation: ComputationFormula, Formula: "B + 1"},
			{Code: "B", Kind: KindEarning, Computation: ComputationPercentOfBase, Percent: d("10"), BaseComponent: "A"},
		}, ErrCyclicComponentDependency},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(tc.components)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFullAmountsRejectsNegativeComponent(t *testing.T) {
	plan, err := Compile([]Component{
		{Code: "BASIC", Kind: KindEarning, Computation: ComputationFixedAmount, Amount: d("100")},
		{Code: "ADJ", Kind: KindEarning, Computation: ComputationFormula, Formula: "BASIC - 200"},
	})
	require.NoError(t, err)
	_, err = plan.FullAmounts(nil)
	assert.ErrorIs(t, err, ErrComponentEvaluationFailure)
}
